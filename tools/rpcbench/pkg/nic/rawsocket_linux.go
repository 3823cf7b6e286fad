//go:build linux
// +build linux

package nic

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// RawSocket is the real, non-loopback NIC backend: an AF_PACKET SOCK_RAW
// socket bound to one interface, so every Send writes a complete Ethernet
// frame (the headers package's templates included) and every Recv drains
// whatever arrived on that interface since the last poll. It is the
// closest stock-kernel approximation of a kernel-bypass transport;
// RequirePrivileges checks for the CAP_NET_RAW capability binding a raw
// socket needs.
type RawSocket struct {
	fd    int
	pool  *Pool
	rxBuf []byte
}

// NewRawSocket opens and binds a raw socket on ifaceName. Call
// RequirePrivileges first; this does not check capabilities itself.
func NewRawSocket(ifaceName string, pool *Pool, frameSize int) (*RawSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("nic: lookup interface %q: %w", ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("nic: open raw socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nic: bind raw socket to %q: %w", ifaceName, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nic: set nonblocking: %w", err)
	}

	return &RawSocket{fd: fd, pool: pool, rxBuf: make([]byte, frameSize)}, nil
}

func (r *RawSocket) AllocFrame() (*Frame, error) { return r.pool.Alloc() }

// Send writes every frame in batch to the socket and releases each one.
// A frame hitting EAGAIN is dropped and not counted. The first other write
// error is returned after the rest of the batch has been attempted; frames
// written successfully count toward sent.
func (r *RawSocket) Send(batch []*Frame) (uint32, error) {
	var sent uint32
	var firstErr error
	for _, f := range batch {
		_, err := unix.Write(r.fd, f.Bytes())
		f.Release()
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("nic: write: %w", err)
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

// Recv drains whatever frames are queued on the socket, without blocking.
// It stops at the first EAGAIN/EWOULDBLOCK, which is the normal "nothing
// more ready" outcome, not an error.
func (r *RawSocket) Recv() []*Frame {
	var out []*Frame
	for {
		n, _, err := unix.Recvfrom(r.fd, r.rxBuf, 0)
		if err != nil {
			break
		}
		f, allocErr := r.pool.Alloc()
		if allocErr != nil {
			break
		}
		m := copy(f.buf, r.rxBuf[:n])
		f.SetLen(m)
		out = append(out, f)
	}
	return out
}

// Close releases the underlying file descriptor.
func (r *RawSocket) Close() error {
	return unix.Close(r.fd)
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
