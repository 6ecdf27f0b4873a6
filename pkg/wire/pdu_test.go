package wire

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
)

func TestHelloRoundtrip(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	frame := NewHelloFrame(id, domain.RoleCentral, "zmk-right-half")

	assert.Equal(t, FrameHello, frame.Type)

	hello, err := DecodeHello(frame.Payload)

	require.NoError(t, err)
	assert.Equal(t, id, hello.ID)
	assert.Equal(t, domain.RoleCentral, hello.Role)
	assert.Equal(t, "zmk-right-half", hello.Name)
}

func TestHelloNameCapped(t *testing.T) {
	t.Parallel()
	frame := NewHelloFrame(uuid.New(), domain.RolePeripheral, strings.Repeat("x", 200))

	hello, err := DecodeHello(frame.Payload)

	require.NoError(t, err)
	assert.Len(t, hello.Name, domain.MaxPeerNameLength)
}

func TestDecodeHelloErrors(t *testing.T) {
	t.Parallel()
	valid := NewHelloFrame(uuid.New(), domain.RolePeripheral, "half").Payload

	badRole := append([]byte(nil), valid...)
	badRole[16] = 9

	truncatedName := append([]byte(nil), valid[:helloMinLen]...)
	truncatedName[17] = 10

	testCases := []struct {
		name    string
		payload []byte
		wantErr string
	}{
		{"too short", valid[:10], "hello too short"},
		{"bad role", badRole, "bad hello role"},
		{"truncated name", truncatedName, "name truncated"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeHello(tc.payload)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSubrateRequestRoundtrip(t *testing.T) {
	t.Parallel()
	params := domain.SubrateParams{
		SubrateMin:         5,
		SubrateMax:         10,
		MaxLatency:         2,
		ContinuationNumber: 1,
		SupervisionTimeout: 400,
	}

	frame := NewSubrateRequestFrame(params)

	assert.Equal(t, FrameSubrateRequest, frame.Type)
	require.Len(t, frame.Payload, paramsLen)

	decoded, err := DecodeSubrateRequest(frame.Payload)

	require.NoError(t, err)
	assert.Equal(t, params, decoded)
}

func TestDecodeSubrateRequestWrongLength(t *testing.T) {
	t.Parallel()
	_, err := DecodeSubrateRequest([]byte{1, 2, 3})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 10 bytes")
}

func TestSubrateChangedRoundtrip(t *testing.T) {
	t.Parallel()
	frame := NewSubrateChangedFrame(domain.HCIStatusSuccess, 10, 1)

	assert.Equal(t, FrameSubrateChanged, frame.Type)

	changed, err := DecodeSubrateChanged(frame.Payload)

	require.NoError(t, err)
	assert.Equal(t, domain.HCIStatusSuccess, changed.Status)
	assert.Equal(t, uint16(10), changed.Factor)
	assert.Equal(t, uint16(1), changed.ContinuationNumber)
}

func TestDecodeSubrateChangedWrongLength(t *testing.T) {
	t.Parallel()
	_, err := DecodeSubrateChanged([]byte{0})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 5 bytes")
}

func TestPhyUpdateRoundtrip(t *testing.T) {
	t.Parallel()
	frame := NewPhyUpdateFrame(domain.Phy2M, domain.PhyCoded)

	assert.Equal(t, FramePhyUpdate, frame.Type)

	phy, err := DecodePhyUpdate(frame.Payload)

	require.NoError(t, err)
	assert.Equal(t, domain.Phy2M, phy.TxPhy)
	assert.Equal(t, domain.PhyCoded, phy.RxPhy)
}

func TestDecodePhyUpdateWrongLength(t *testing.T) {
	t.Parallel()
	_, err := DecodePhyUpdate([]byte{1, 2, 3})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 2 bytes")
}
