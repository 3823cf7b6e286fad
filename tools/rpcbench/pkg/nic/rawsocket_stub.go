//go:build !linux
// +build !linux

package nic

import "fmt"

// ErrPlatformNotSupported is returned by NewRawSocket on platforms without
// an AF_PACKET raw socket implementation.
var ErrPlatformNotSupported = fmt.Errorf("nic: raw sockets not supported on this platform")

// RawSocket is unavailable outside Linux; use Loopback instead.
type RawSocket struct{}

func NewRawSocket(ifaceName string, pool *Pool, frameSize int) (*RawSocket, error) {
	return nil, ErrPlatformNotSupported
}

func (r *RawSocket) AllocFrame() (*Frame, error) { return nil, ErrPlatformNotSupported }

func (r *RawSocket) Send(batch []*Frame) (uint32, error) { return 0, ErrPlatformNotSupported }

func (r *RawSocket) Recv() []*Frame { return nil }

func (r *RawSocket) Close() error { return nil }
