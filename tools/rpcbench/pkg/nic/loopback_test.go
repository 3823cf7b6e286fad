package nic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type echoResponder struct{}

func (echoResponder) Respond(req []byte, emit func(resp []byte)) {
	dup := append([]byte(nil), req...)
	emit(dup)
}

type silentResponder struct{}

func (silentResponder) Respond(req []byte, emit func(resp []byte)) {}

func TestLoopbackEcho(t *testing.T) {
	pool := NewPool(4, 32)
	l := NewLoopback(pool, echoResponder{})

	f, err := l.AllocFrame()
	require.NoError(t, err)
	f.SetLen(copy(f.Bytes()[:cap(f.Bytes())], "hello"))
	f.SetLen(5)

	sent, err := l.Send([]*Frame{f})
	require.NoError(t, err)
	require.EqualValues(t, 1, sent)

	resp := l.Recv()
	require.Len(t, resp, 1)
	require.Equal(t, "hello", string(resp[0].Bytes()))
	resp[0].Release()

	require.Nil(t, l.Recv())
}

func TestLoopbackDropsWithoutResponse(t *testing.T) {
	pool := NewPool(2, 32)
	l := NewLoopback(pool, silentResponder{})

	f, err := l.AllocFrame()
	require.NoError(t, err)
	f.SetLen(4)

	sent, err := l.Send([]*Frame{f})
	require.NoError(t, err)
	require.EqualValues(t, 1, sent)
	require.Nil(t, l.Recv())
}

func TestLoopbackDropsResponseWhenPoolExhausted(t *testing.T) {
	pool := NewPool(1, 32)
	l := NewLoopback(pool, echoResponder{})

	f, err := l.AllocFrame()
	require.NoError(t, err)
	f.SetLen(4)

	// The single frame in the pool is now in flight inside f; the
	// responder's Alloc for the reply must fail and the reply is dropped.
	_, err = l.Send([]*Frame{f})
	require.NoError(t, err)
	require.Nil(t, l.Recv())
}
