// Package wire implements the client-produced RPC wire format: a common
// request/response header followed by opcode-specific fields, carried as the
// payload of a UDP datagram. Field order and widths are bit-exact and must
// not change without a corresponding server-side change. All multi-byte
// integers are big-endian (network byte order), matching the MAC/IP/UDP
// headers the same frame carries. The one exception is the sampled key
// index inside a Get/Put key buffer, which workload.Next encodes
// little-endian per spec.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies the RPC. Response opcodes echo the request opcode that
// produced them.
type Opcode uint8

const (
	OpGet Opcode = iota + 1
	OpPut
	OpInvoke
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "Get"
	case OpPut:
		return "Put"
	case OpInvoke:
		return "Invoke"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// Status appears only in responses to invoke().
type Status uint8

const (
	StatusOk Status = iota
	StatusPushback
)

// RequestHeaderLen is the size in bytes of the common request header:
// opcode(1) + tenant(4) + stamp(8).
const RequestHeaderLen = 1 + 4 + 8

// ResponseHeaderLen is the size in bytes of the common response header:
// opcode(1) + tenant(4) + stamp(8) + status(1).
const ResponseHeaderLen = RequestHeaderLen + 1

// RequestHeader is the common prefix of every outgoing RPC.
type RequestHeader struct {
	Opcode Opcode
	Tenant uint32
	Stamp  uint64
}

// PutRequestHeader puts the common request header at the front of dst, which
// must be at least RequestHeaderLen bytes, and returns the number of bytes
// written.
func PutRequestHeader(dst []byte, h RequestHeader) int {
	dst[0] = byte(h.Opcode)
	binary.BigEndian.PutUint32(dst[1:5], h.Tenant)
	binary.BigEndian.PutUint64(dst[5:13], h.Stamp)
	return RequestHeaderLen
}

// ResponseHeader is the common prefix of every RPC response.
type ResponseHeader struct {
	Opcode Opcode
	Tenant uint32
	Stamp  uint64
	Status Status
}

// ParseResponseHeader reads the common response header from the front of
// buf. buf must be at least ResponseHeaderLen bytes.
func ParseResponseHeader(buf []byte) (ResponseHeader, error) {
	if len(buf) < ResponseHeaderLen {
		return ResponseHeader{}, fmt.Errorf("wire: response header truncated: got %d bytes, need %d", len(buf), ResponseHeaderLen)
	}
	return ResponseHeader{
		Opcode: Opcode(buf[0]),
		Tenant: binary.BigEndian.Uint32(buf[1:5]),
		Stamp:  binary.BigEndian.Uint64(buf[5:13]),
		Status: Status(buf[13]),
	}, nil
}

// GetRequestFieldsLen is table_id(8) + key_len(2).
const GetRequestFieldsLen = 8 + 2

// PutGetRequestFields appends the get()-specific fields (table id, key
// length) to dst and returns the extended slice. Caller appends the key bytes
// after this call.
func PutGetRequestFields(dst []byte, tableID uint64, keyLen uint16) []byte {
	var buf [GetRequestFieldsLen]byte
	binary.BigEndian.PutUint64(buf[0:8], tableID)
	binary.BigEndian.PutUint16(buf[8:10], keyLen)
	return append(dst, buf[:]...)
}

// PutRequestFieldsLen is table_id(8) + key_len(2) + value_len(2).
const PutRequestFieldsLen = 8 + 2 + 2

// PutPutRequestFields appends the put()-specific fields to dst. Caller
// appends key bytes then value bytes after this call.
func PutPutRequestFields(dst []byte, tableID uint64, keyLen, valueLen uint16) []byte {
	var buf [PutRequestFieldsLen]byte
	binary.BigEndian.PutUint64(buf[0:8], tableID)
	binary.BigEndian.PutUint16(buf[8:10], keyLen)
	binary.BigEndian.PutUint16(buf[10:12], valueLen)
	return append(dst, buf[:]...)
}

// InvokeRequestFieldsLen is name_len(4) + args_len(4).
const InvokeRequestFieldsLen = 4 + 4

// PutInvokeRequestFields appends the invoke()-specific fields to dst. Caller
// appends name bytes then args bytes after this call.
func PutInvokeRequestFields(dst []byte, nameLen, argsLen uint32) []byte {
	var buf [InvokeRequestFieldsLen]byte
	binary.BigEndian.PutUint32(buf[0:4], nameLen)
	binary.BigEndian.PutUint32(buf[4:8], argsLen)
	return append(dst, buf[:]...)
}

// Record is one key/value pair from a pushback read-set snapshot.
type Record struct {
	Key   []byte
	Value []byte
}

// DecodeRecords parses a sequence of { key_len u16, key, value_len u16,
// value } entries until buf is exhausted. Used to parse an InvokePushback
// response payload.
func DecodeRecords(buf []byte) ([]Record, error) {
	var records []Record
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("wire: truncated record key length")
		}
		keyLen := binary.BigEndian.Uint16(buf[0:2])
		buf = buf[2:]
		if len(buf) < int(keyLen)+2 {
			return nil, fmt.Errorf("wire: truncated record key/value")
		}
		key := buf[:keyLen]
		buf = buf[keyLen:]
		valLen := binary.BigEndian.Uint16(buf[0:2])
		buf = buf[2:]
		if len(buf) < int(valLen) {
			return nil, fmt.Errorf("wire: truncated record value")
		}
		val := buf[:valLen]
		buf = buf[valLen:]
		records = append(records, Record{Key: key, Value: val})
	}
	return records, nil
}

// EncodeRecords is the inverse of DecodeRecords, used by tests to build
// pushback payloads.
func EncodeRecords(records []Record) []byte {
	var out []byte
	for _, r := range records {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(r.Key)))
		out = append(out, lenBuf[:]...)
		out = append(out, r.Key...)
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(r.Value)))
		out = append(out, lenBuf[:]...)
		out = append(out, r.Value...)
	}
	return out
}
