package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeHeader(t *testing.T) {
	t.Parallel()
	frame := &Frame{Type: FrameSubrateChanged, Payload: []byte{0x00, 0x05, 0x00, 0x01, 0x00}}

	encoded := frame.Encode()

	require.Len(t, encoded, HeaderLen+5)
	assert.Equal(t, byte('Z'), encoded[0])
	assert.Equal(t, byte('K'), encoded[1])
	assert.Equal(t, Version, encoded[2])
	assert.Equal(t, uint8(FrameSubrateChanged), encoded[3])
	assert.Equal(t, byte(5), encoded[4])
	assert.Equal(t, byte(0), encoded[5])

	_, err := Decode(encoded)
	assert.NoError(t, err, "encoded frame must carry a valid checksum")
}

func TestFrameRoundtrip(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"empty payload", &Frame{Type: FrameHello}},
		{"single byte", &Frame{Type: FramePhyUpdate, Payload: []byte{0x01}}},
		{"request params", &Frame{Type: FrameSubrateRequest, Payload: []byte{5, 0, 10, 0, 2, 0, 1, 0, 0x90, 1}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(tc.frame.Encode())

			require.NoError(t, err)
			assert.Equal(t, tc.frame.Type, decoded.Type)
			assert.Equal(t, tc.frame.Payload, decoded.Payload)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	valid := (&Frame{Type: FrameHello, Payload: []byte("hello")}).Encode()

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0xFF

	badVersion := append([]byte(nil), valid...)
	badVersion[2] = 99

	corrupted := append([]byte(nil), valid...)
	corrupted[len(corrupted)-1] ^= 0x01

	oversized := append([]byte(nil), valid...)
	oversized[4] = 0xFF
	oversized[5] = 0xFF

	testCases := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"too short", []byte{0x5A, 0x4B}, "too short"},
		{"bad magic", badMagic, "bad magic"},
		{"bad version", badVersion, "unsupported version"},
		{"oversized length", oversized, "payload too large"},
		{"incomplete payload", valid[:len(valid)-2], "incomplete frame"},
		{"corrupted payload", corrupted, "checksum mismatch"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestReadWriteFrameStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	first := &Frame{Type: FrameSubrateRequest, Payload: []byte{1, 0, 3, 0, 0, 0, 0, 0, 0x90, 1}}
	second := &Frame{Type: FrameSubrateChanged, Payload: []byte{0, 3, 0, 0, 0}}

	require.NoError(t, WriteFrame(&buf, first))
	require.NoError(t, WriteFrame(&buf, second))

	got1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameSubrateRequest, got1.Type)
	assert.Equal(t, first.Payload, got1.Payload)

	got2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameSubrateChanged, got2.Type)
	assert.Equal(t, second.Payload, got2.Payload)

	_, err = ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameRejectsCorruption(t *testing.T) {
	t.Parallel()
	encoded := (&Frame{Type: FramePhyUpdate, Payload: []byte{1, 2}}).Encode()
	encoded[HeaderLen] ^= 0xFF

	_, err := ReadFrame(bytes.NewReader(encoded))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFrameTypeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "HELLO", FrameHello.String())
	assert.Equal(t, "SUBRATE_REQ", FrameSubrateRequest.String())
	assert.Equal(t, "SUBRATE_CHANGED", FrameSubrateChanged.String())
	assert.Equal(t, "PHY_UPDATE", FramePhyUpdate.String())
	assert.Equal(t, "UNKNOWN(0x7f)", FrameType(0x7F).String())
}
