// Package rpcclient implements the Sender and Receiver halves of the RPC
// wire protocol: building and transmitting request frames, and parsing and
// classifying response frames. Both follow an "allocate once, reuse the
// buffer, write in place" discipline, here applied to variable-shaped RPC
// frames instead of a fixed-size payload.
package rpcclient

import (
	"fmt"
	"log/slog"

	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/headers"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/nic"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/wire"
)

// Sender serializes logical RPCs onto freshly allocated NIC frames and
// transmits them. It is not safe for concurrent use; each core owns one.
type Sender struct {
	log     *slog.Logger
	nic     nic.NIC
	headers *headers.Builder
}

// NewSender builds a Sender that pushes hb's header templates onto frames
// drawn from n.
func NewSender(log *slog.Logger, n nic.NIC, hb *headers.Builder) *Sender {
	return &Sender{log: log, nic: n, headers: hb}
}

func (s *Sender) buildFrame(opcode wire.Opcode, tenant uint32, stamp uint64, fields func(body []byte) []byte) (*nic.Frame, error) {
	f, err := s.nic.AllocFrame()
	if err != nil {
		// Pool exhaustion on the hot path is fatal: it indicates a
		// misconfigured NIC and continuing would corrupt the measurement.
		return nil, fmt.Errorf("rpcclient: %w", err)
	}

	raw := f.Raw()
	off := s.headers.Push(raw)
	off += wire.PutRequestHeader(raw[off:], wire.RequestHeader{Opcode: opcode, Tenant: tenant, Stamp: stamp})

	body := fields(raw[:off])
	if cap(body) != cap(raw) {
		f.Release()
		return nil, fmt.Errorf("rpcclient: request body exceeds frame capacity (%d)", len(raw))
	}

	udpPayloadLen := len(body) - headers.HeaderLen
	headers.StampLengths(raw, udpPayloadLen)
	f.SetLen(len(body))
	return f, nil
}

func (s *Sender) transmit(f *nic.Frame) error {
	sent, err := s.nic.Send([]*nic.Frame{f})
	if err != nil {
		return fmt.Errorf("rpcclient: transmit: %w", err)
	}
	if sent == 0 {
		s.log.Warn("rpcclient: NIC rejected packet in batch")
	}
	return nil
}

// SendGet transmits a native GET.
func (s *Sender) SendGet(tenant uint32, tableID uint64, key []byte, stamp uint64) error {
	f, err := s.buildFrame(wire.OpGet, tenant, stamp, func(body []byte) []byte {
		body = wire.PutGetRequestFields(body, tableID, uint16(len(key)))
		return append(body, key...)
	})
	if err != nil {
		return err
	}
	return s.transmit(f)
}

// SendPut transmits a native PUT.
func (s *Sender) SendPut(tenant uint32, tableID uint64, key, value []byte, stamp uint64) error {
	f, err := s.buildFrame(wire.OpPut, tenant, stamp, func(body []byte) []byte {
		body = wire.PutPutRequestFields(body, tableID, uint16(len(key)), uint16(len(value)))
		body = append(body, key...)
		return append(body, value...)
	})
	if err != nil {
		return err
	}
	return s.transmit(f)
}

// SendInvoke transmits an invoke() whose payload is name ‖ args, with name
// occupying the first nameLen bytes of payload.
func (s *Sender) SendInvoke(tenant uint32, nameLen uint32, payload []byte, stamp uint64) error {
	f, err := s.buildFrame(wire.OpInvoke, tenant, stamp, func(body []byte) []byte {
		argsLen := uint32(len(payload)) - nameLen
		body = wire.PutInvokeRequestFields(body, nameLen, argsLen)
		return append(body, payload...)
	})
	if err != nil {
		return err
	}
	return s.transmit(f)
}
