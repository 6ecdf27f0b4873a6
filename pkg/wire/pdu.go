package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
)

const (
	paramsLen   = 10
	changedLen  = 5
	phyLen      = 2
	helloMinLen = 18
)

// Hello identifies a peer right after connect. The dialing side sends
// first, the accepting side answers.
type Hello struct {
	ID   uuid.UUID
	Role domain.LinkRole
	Name string
}

// SubrateChanged reports the outcome of a subrate request back to the
// requesting side. Status zero means applied.
type SubrateChanged struct {
	Status             uint8
	Factor             uint16
	ContinuationNumber uint16
}

// PhyUpdate reports a PHY change on the link.
type PhyUpdate struct {
	TxPhy uint8
	RxPhy uint8
}

func NewHelloFrame(id uuid.UUID, role domain.LinkRole, name string) *Frame {
	if len(name) > domain.MaxPeerNameLength {
		name = name[:domain.MaxPeerNameLength]
	}

	payload := make([]byte, helloMinLen+len(name))
	copy(payload[0:16], id[:])
	payload[16] = uint8(role)
	payload[17] = uint8(len(name))
	copy(payload[helloMinLen:], name)

	return &Frame{Type: FrameHello, Payload: payload}
}

func DecodeHello(payload []byte) (*Hello, error) {
	if len(payload) < helloMinLen {
		return nil, fmt.Errorf("wire: hello too short (%d bytes)", len(payload))
	}

	id, err := uuid.FromBytes(payload[0:16])
	if err != nil {
		return nil, fmt.Errorf("wire: bad hello id: %w", err)
	}

	role := domain.LinkRole(payload[16])
	if role != domain.RoleCentral && role != domain.RolePeripheral {
		return nil, fmt.Errorf("wire: bad hello role %d", payload[16])
	}

	nameLen := int(payload[17])
	if len(payload) < helloMinLen+nameLen {
		return nil, fmt.Errorf("wire: hello name truncated (claimed %d, got %d)", nameLen, len(payload)-helloMinLen)
	}

	return &Hello{
		ID:   id,
		Role: role,
		Name: string(payload[helloMinLen : helloMinLen+nameLen]),
	}, nil
}

func NewSubrateRequestFrame(params domain.SubrateParams) *Frame {
	return &Frame{Type: FrameSubrateRequest, Payload: encodeParams(params)}
}

func DecodeSubrateRequest(payload []byte) (domain.SubrateParams, error) {
	if len(payload) != paramsLen {
		return domain.SubrateParams{}, fmt.Errorf("wire: subrate request must be %d bytes, got %d", paramsLen, len(payload))
	}
	return decodeParams(payload), nil
}

func NewSubrateChangedFrame(status uint8, factor, continuationNumber uint16) *Frame {
	payload := make([]byte, changedLen)
	payload[0] = status
	binary.LittleEndian.PutUint16(payload[1:3], factor)
	binary.LittleEndian.PutUint16(payload[3:5], continuationNumber)
	return &Frame{Type: FrameSubrateChanged, Payload: payload}
}

func DecodeSubrateChanged(payload []byte) (*SubrateChanged, error) {
	if len(payload) != changedLen {
		return nil, fmt.Errorf("wire: subrate changed must be %d bytes, got %d", changedLen, len(payload))
	}
	return &SubrateChanged{
		Status:             payload[0],
		Factor:             binary.LittleEndian.Uint16(payload[1:3]),
		ContinuationNumber: binary.LittleEndian.Uint16(payload[3:5]),
	}, nil
}

func NewPhyUpdateFrame(txPhy, rxPhy uint8) *Frame {
	return &Frame{Type: FramePhyUpdate, Payload: []byte{txPhy, rxPhy}}
}

func DecodePhyUpdate(payload []byte) (*PhyUpdate, error) {
	if len(payload) != phyLen {
		return nil, fmt.Errorf("wire: phy update must be %d bytes, got %d", phyLen, len(payload))
	}
	return &PhyUpdate{TxPhy: payload[0], RxPhy: payload[1]}, nil
}

// encodeParams lays out the five fields in HCI command order.
func encodeParams(p domain.SubrateParams) []byte {
	buf := make([]byte, paramsLen)
	binary.LittleEndian.PutUint16(buf[0:2], p.SubrateMin)
	binary.LittleEndian.PutUint16(buf[2:4], p.SubrateMax)
	binary.LittleEndian.PutUint16(buf[4:6], p.MaxLatency)
	binary.LittleEndian.PutUint16(buf[6:8], p.ContinuationNumber)
	binary.LittleEndian.PutUint16(buf[8:10], p.SupervisionTimeout)
	return buf
}

func decodeParams(buf []byte) domain.SubrateParams {
	return domain.SubrateParams{
		SubrateMin:         binary.LittleEndian.Uint16(buf[0:2]),
		SubrateMax:         binary.LittleEndian.Uint16(buf[2:4]),
		MaxLatency:         binary.LittleEndian.Uint16(buf[4:6]),
		ContinuationNumber: binary.LittleEndian.Uint16(buf[6:8]),
		SupervisionTimeout: binary.LittleEndian.Uint16(buf[8:10]),
	}
}
