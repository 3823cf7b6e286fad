package bench

import (
	"encoding/binary"

	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/workload"
)

// extensionName is the extension every tenant registers against the
// in-process store.
const extensionName = "pushback"

// buildInvokePayload encodes one WorkloadGen sample as an invoke() payload
// for extensionName: table id, key length, then key for Get; table id, key
// length, value length, key, then value for Put. This argument layout is internal to this benchmark's
// own extension — the wire contract only fixes the common invoke-request
// fields (name_len, args_len), not the bytes inside args.
func buildInvokePayload(op workload.Op, tableID uint64) (payload []byte, nameLen uint32) {
	name := []byte(extensionName)
	var args []byte
	switch op.Kind {
	case workload.Get:
		args = make([]byte, 8+2+len(op.Key))
		binary.BigEndian.PutUint64(args[0:8], tableID)
		binary.BigEndian.PutUint16(args[8:10], uint16(len(op.Key)))
		copy(args[10:], op.Key)
	case workload.Put:
		args = make([]byte, 8+2+2+len(op.Key)+len(op.Value))
		binary.BigEndian.PutUint64(args[0:8], tableID)
		binary.BigEndian.PutUint16(args[8:10], uint16(len(op.Key)))
		binary.BigEndian.PutUint16(args[10:12], uint16(len(op.Value)))
		off := 12
		off += copy(args[off:], op.Key)
		copy(args[off:], op.Value)
	}
	payload = make([]byte, 0, len(name)+len(args))
	payload = append(payload, name...)
	payload = append(payload, args...)
	return payload, uint32(len(name))
}
