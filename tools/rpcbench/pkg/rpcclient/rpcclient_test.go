package rpcclient

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/headers"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/nic"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/wire"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHeaders(t *testing.T) *headers.Builder {
	hb, err := headers.NewBuilder(headers.Config{
		SrcMAC:  net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:  net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		SrcIP:   net.IPv4(10, 0, 0, 1),
		DstIP:   net.IPv4(10, 0, 0, 2),
		SrcPort: 9000,
		DstPort: 9001,
	})
	require.NoError(t, err)
	return hb
}

// getOkResponder answers every request with a GetOk carrying the stamp
// and tenant from the request plus a fixed payload, regardless of opcode —
// enough to exercise Sender/Receiver framing end to end.
type getOkResponder struct {
	payload []byte
}

func (r getOkResponder) Respond(req []byte, emit func([]byte)) {
	rpc := req[headers.HeaderLen:]
	reqHdr := wire.RequestHeader{
		Opcode: wire.Opcode(rpc[0]),
		Tenant: beUint32(rpc[1:5]),
		Stamp:  beUint64(rpc[5:13]),
	}

	resp := make([]byte, headers.HeaderLen)
	off := wire.ResponseHeaderLen
	buf := make([]byte, off+len(r.payload))
	wire.PutRequestHeader(buf, reqHdr) // writes opcode/tenant/stamp prefix
	buf[wire.RequestHeaderLen] = byte(wire.StatusOk)
	copy(buf[off:], r.payload)
	resp = append(resp, buf...)
	emit(resp)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func TestSendGetAndReceiveGetOk(t *testing.T) {
	pool := nic.NewPool(8, 1500)
	l := nic.NewLoopback(pool, getOkResponder{payload: []byte("hello")})
	hb := testHeaders(t)

	sender := NewSender(testLogger(), l, hb)
	receiver := NewReceiver(testLogger(), l)

	require.NoError(t, sender.SendGet(1, 7, []byte("key1"), 1234))

	resps := receiver.Poll()
	require.Len(t, resps, 1)
	require.Equal(t, GetOk, resps[0].Kind)
	require.EqualValues(t, 1234, resps[0].Stamp)
	require.Equal(t, "hello", string(resps[0].Payload))
}

func TestSendPutDoesNotBlockOnResponse(t *testing.T) {
	pool := nic.NewPool(8, 1500)
	l := nic.NewLoopback(pool, getOkResponder{payload: nil})
	hb := testHeaders(t)
	sender := NewSender(testLogger(), l, hb)

	require.NoError(t, sender.SendPut(1, 7, []byte("k"), []byte("v"), 99))
	// The request frame is released once sent; the response frame the
	// loopback responder queued is still outstanding until Poll drains it.
	require.Equal(t, 7, pool.Available())
}

func TestSendInvoke(t *testing.T) {
	pool := nic.NewPool(8, 1500)
	l := nic.NewLoopback(pool, getOkResponder{payload: nil})
	hb := testHeaders(t)
	sender := NewSender(testLogger(), l, hb)

	payload := append([]byte("pushback"), []byte("args")...)
	require.NoError(t, sender.SendInvoke(1, 8, payload, 5))
}

func TestReceiverUnknownOnShortFrame(t *testing.T) {
	pool := nic.NewPool(4, 64)
	responder := rawEmitter{}
	l := nic.NewLoopback(pool, responder)
	receiver := NewReceiver(testLogger(), l)

	f, err := l.AllocFrame()
	require.NoError(t, err)
	f.SetLen(4)
	_, err = l.Send([]*nic.Frame{f})
	require.NoError(t, err)

	resps := receiver.Poll()
	require.Len(t, resps, 1)
	require.Equal(t, Unknown, resps[0].Kind)
}

type rawEmitter struct{}

func (rawEmitter) Respond(req []byte, emit func([]byte)) { emit(append([]byte(nil), req...)) }
