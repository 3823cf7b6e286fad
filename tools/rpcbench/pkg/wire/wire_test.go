package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutRequestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, RequestHeaderLen)
	n := PutRequestHeader(buf, RequestHeader{Opcode: OpInvoke, Tenant: 7, Stamp: 0x0102030405060708})
	require.Equal(t, RequestHeaderLen, n)
	require.Equal(t, byte(OpInvoke), buf[0])
	require.Equal(t, []byte{0, 0, 0, 7}, buf[1:5])
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf[5:13])
}

func TestParseResponseHeader(t *testing.T) {
	buf := []byte{byte(OpGet), 0, 0, 0, 42, 0, 0, 0, 0, 0, 0, 0, 99, byte(StatusOk)}
	h, err := ParseResponseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, ResponseHeader{Opcode: OpGet, Tenant: 42, Stamp: 99, Status: StatusOk}, h)
}

func TestParseResponseHeaderTruncated(t *testing.T) {
	_, err := ParseResponseHeader(make([]byte, ResponseHeaderLen-1))
	require.Error(t, err)
}

func TestEncodeDecodeRecordsRoundTrip(t *testing.T) {
	records := []Record{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("key-two"), Value: []byte("")},
		{Key: []byte("k3"), Value: []byte("value-three")},
	}
	encoded := EncodeRecords(records)
	decoded, err := DecodeRecords(encoded)
	require.NoError(t, err)
	require.Equal(t, records, decoded)
}

func TestDecodeRecordsTruncated(t *testing.T) {
	_, err := DecodeRecords([]byte{0, 5, 'a', 'b'})
	require.Error(t, err)
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "Get", OpGet.String())
	require.Equal(t, "Put", OpPut.String())
	require.Equal(t, "Invoke", OpInvoke.String())
	require.Contains(t, Opcode(99).String(), "99")
}
