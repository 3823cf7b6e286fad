package rpcclient

import (
	"log/slog"

	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/headers"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/nic"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/wire"
)

// ResponseKind discriminates the shapes Poll can yield. Go has no sum
// types; ParsedResponse carries only the fields its Kind defines.
type ResponseKind int

const (
	Unknown ResponseKind = iota
	GetOk
	PutOk
	InvokeOk
	InvokePushback
)

// ParsedResponse is one frame Receiver.Poll has classified. Payload is
// populated only for GetOk; Tenant and Records only for InvokePushback.
type ParsedResponse struct {
	Kind    ResponseKind
	Stamp   uint64
	Tenant  uint32
	Payload []byte
	Records []wire.Record
}

// Receiver polls the NIC for frames, parses the common RPC response
// header, and classifies each one. It is not safe for concurrent use.
type Receiver struct {
	log *slog.Logger
	nic nic.NIC
}

// NewReceiver builds a Receiver that drains n.
func NewReceiver(log *slog.Logger, n nic.NIC) *Receiver {
	return &Receiver{log: log, nic: n}
}

// Poll drains whatever frames have arrived on the NIC and returns their
// classification. Every returned frame is released back to the NIC's pool
// before Poll returns; Payload and Records are copied out first, so the
// caller may retain a ParsedResponse indefinitely.
func (r *Receiver) Poll() []ParsedResponse {
	frames := r.nic.Recv()
	if len(frames) == 0 {
		return nil
	}

	out := make([]ParsedResponse, 0, len(frames))
	for _, f := range frames {
		out = append(out, r.parse(f))
		f.Release()
	}
	return out
}

func (r *Receiver) parse(f *nic.Frame) ParsedResponse {
	buf := f.Bytes()
	if len(buf) < headers.HeaderLen+wire.ResponseHeaderLen {
		r.log.Warn("rpcclient: frame too short for a response header", "len", len(buf))
		return ParsedResponse{Kind: Unknown}
	}

	rpc := buf[headers.HeaderLen:]
	hdr, err := wire.ParseResponseHeader(rpc)
	if err != nil {
		r.log.Warn("rpcclient: malformed response", "err", err)
		return ParsedResponse{Kind: Unknown}
	}
	body := rpc[wire.ResponseHeaderLen:]

	switch hdr.Opcode {
	case wire.OpGet:
		payload := append([]byte(nil), body...)
		return ParsedResponse{Kind: GetOk, Stamp: hdr.Stamp, Payload: payload}

	case wire.OpPut:
		return ParsedResponse{Kind: PutOk, Stamp: hdr.Stamp}

	case wire.OpInvoke:
		switch hdr.Status {
		case wire.StatusOk:
			return ParsedResponse{Kind: InvokeOk, Stamp: hdr.Stamp}
		case wire.StatusPushback:
			records, err := wire.DecodeRecords(body)
			if err != nil {
				r.log.Warn("rpcclient: malformed pushback record set", "err", err)
				return ParsedResponse{Kind: Unknown}
			}
			return ParsedResponse{Kind: InvokePushback, Stamp: hdr.Stamp, Tenant: hdr.Tenant, Records: cloneRecords(records)}
		default:
			r.log.Warn("rpcclient: unknown invoke status", "status", hdr.Status)
			return ParsedResponse{Kind: Unknown}
		}

	default:
		r.log.Warn("rpcclient: unknown response opcode", "opcode", hdr.Opcode)
		return ParsedResponse{Kind: Unknown}
	}
}

func cloneRecords(records []wire.Record) []wire.Record {
	out := make([]wire.Record, len(records))
	for i, r := range records {
		out[i] = wire.Record{
			Key:   append([]byte(nil), r.Key...),
			Value: append([]byte(nil), r.Value...),
		}
	}
	return out
}
