package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/OneOfOne/xxhash"
)

const (
	// Magic marks the start of every frame ("ZK" little-endian).
	Magic   uint16 = 0x4b5a
	Version uint8  = 1

	// HeaderLen is magic(2) + version(1) + type(1) + length(2) + checksum(4).
	HeaderLen = 10

	// MaxFramePayload bounds the allocation a peer can force with a
	// single length field.
	MaxFramePayload = 512
)

type FrameType uint8

const (
	FrameHello FrameType = iota + 1
	FrameSubrateRequest
	FrameSubrateChanged
	FramePhyUpdate
)

var frameTypeNames = map[FrameType]string{
	FrameHello:          "HELLO",
	FrameSubrateRequest: "SUBRATE_REQ",
	FrameSubrateChanged: "SUBRATE_CHANGED",
	FramePhyUpdate:      "PHY_UPDATE",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
}

// Frame is one unit on a link socket.
// Format: [magic: 2] [version: 1] [type: 1] [length: 2] [checksum: 4] [payload: N]
// all little-endian. The checksum is xxhash32 over the whole frame with
// the checksum field zeroed.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Encode serializes the frame to binary format.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderLen+len(f.Payload))

	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = uint8(f.Type)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(f.Payload)))
	copy(buf[HeaderLen:], f.Payload)

	// checksum field stays zero while hashing
	binary.LittleEndian.PutUint32(buf[6:10], xxhash.Checksum32(buf))

	return buf
}

// Decode parses a complete binary frame.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("wire: frame too short (need at least %d bytes, got %d)", HeaderLen, len(data))
	}

	if got := binary.LittleEndian.Uint16(data[0:2]); got != Magic {
		return nil, fmt.Errorf("wire: bad magic 0x%04x", got)
	}
	if data[2] != Version {
		return nil, fmt.Errorf("wire: unsupported version %d", data[2])
	}

	length := binary.LittleEndian.Uint16(data[4:6])
	if length > MaxFramePayload {
		return nil, fmt.Errorf("wire: payload too large (%d > %d)", length, MaxFramePayload)
	}
	if len(data) < HeaderLen+int(length) {
		return nil, fmt.Errorf("wire: incomplete frame (claimed length %d, got %d)", length, len(data)-HeaderLen)
	}

	claimed := binary.LittleEndian.Uint32(data[6:10])
	if computed := checksumWithZeroedField(data[:HeaderLen+int(length)]); claimed != computed {
		return nil, fmt.Errorf("wire: checksum mismatch (claimed 0x%08x, computed 0x%08x)", claimed, computed)
	}

	payload := make([]byte, length)
	copy(payload, data[HeaderLen:HeaderLen+int(length)])

	return &Frame{
		Type:    FrameType(data[3]),
		Payload: payload,
	}, nil
}

// WriteFrame writes one encoded frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if _, err := w.Write(f.Encode()); err != nil {
		return fmt.Errorf("wire: write failed: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r. On a cleanly closed
// connection the error is io.EOF.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read header failed: %w", err)
	}

	if got := binary.LittleEndian.Uint16(header[0:2]); got != Magic {
		return nil, fmt.Errorf("wire: bad magic 0x%04x", got)
	}
	if header[2] != Version {
		return nil, fmt.Errorf("wire: unsupported version %d", header[2])
	}

	length := binary.LittleEndian.Uint16(header[4:6])
	if length > MaxFramePayload {
		return nil, fmt.Errorf("wire: payload too large (%d > %d)", length, MaxFramePayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload failed: %w", err)
	}

	claimed := binary.LittleEndian.Uint32(header[6:10])
	if computed := checksumWithZeroedField(append(header, payload...)); claimed != computed {
		return nil, fmt.Errorf("wire: checksum mismatch (claimed 0x%08x, computed 0x%08x)", claimed, computed)
	}

	return &Frame{
		Type:    FrameType(header[3]),
		Payload: payload,
	}, nil
}

func checksumWithZeroedField(frame []byte) uint32 {
	scratch := make([]byte, len(frame))
	copy(scratch, frame)
	binary.LittleEndian.PutUint32(scratch[6:10], 0)
	return xxhash.Checksum32(scratch)
}
