// Package headers builds the fixed Ethernet/IPv4/UDP header templates that
// are memcpy'd onto every outgoing request frame, and patches the two
// length fields that depend on the RPC payload size.
//
// The templates are constructed once, at startup, using
// github.com/google/gopacket/layers for correct field layout. After that
// one-time construction the hot path never touches gopacket again: Push
// and StampLengths work directly on frame bytes, so building a packet
// never allocates.
package headers

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// EthLen, IPLen, and UDPLen are the on-wire sizes of the three header
	// templates. No IP options are ever emitted (IHL=5).
	EthLen = 14
	IPLen  = 20
	UDPLen = 8

	// HeaderLen is the total size of the three templates pushed onto every
	// frame before the RPC header and body.
	HeaderLen = EthLen + IPLen + UDPLen

	// ipTotalLenOffset and udpLenOffset are the byte offsets, from the start
	// of the frame, of the fields StampLengths patches.
	ipTotalLenOffset = EthLen + 2
	udpLenOffset     = EthLen + IPLen + 4
)

// Config describes the fixed addressing used to build the header templates.
// All fields are required.
type Config struct {
	SrcMAC, DstMAC   net.HardwareAddr
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
}

func (c Config) validate() error {
	if len(c.SrcMAC) != 6 || len(c.DstMAC) != 6 {
		return fmt.Errorf("headers: MAC addresses must be 6 bytes")
	}
	if c.SrcIP.To4() == nil || c.DstIP.To4() == nil {
		return fmt.Errorf("headers: IP addresses must be IPv4")
	}
	if c.SrcPort == 0 || c.DstPort == 0 {
		return fmt.Errorf("headers: ports are required")
	}
	return nil
}

// Builder holds the precomputed header templates. It is immutable after
// construction and safe to share read-only across cores.
type Builder struct {
	template [HeaderLen]byte
}

// NewBuilder constructs the MAC/IP/UDP templates from cfg. Length fields are
// left at their placeholder header-only values (IP=20, UDP=8);
// StampLengths patches them per packet.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	eth := layers.Ethernet{
		SrcMAC:       cfg.SrcMAC,
		DstMAC:       cfg.DstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      128,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    cfg.SrcIP.To4(),
		DstIP:    cfg.DstIP.To4(),
		Length:   IPLen, // placeholder: header size only, patched per packet
	}
	udp := layers.UDP{
		SrcPort: layers.UDPPort(cfg.SrcPort),
		DstPort: layers.UDPPort(cfg.DstPort),
		Length:  UDPLen, // placeholder: header size only, patched per packet
	}

	buf := gopacket.NewSerializeBuffer()
	// FixLengths/ComputeChecksums are both off: we want the literal
	// placeholder lengths above, and the UDP checksum is left zero because
	// the simulated fabric is trusted. IP checksum is left zero for the
	// same reason; the loopback NIC backend does not validate it.
	opts := gopacket.SerializeOptions{FixLengths: false, ComputeChecksums: false}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp); err != nil {
		return nil, fmt.Errorf("headers: build templates: %w", err)
	}

	b := &Builder{}
	raw := buf.Bytes()
	if len(raw) != HeaderLen {
		return nil, fmt.Errorf("headers: unexpected template length %d, want %d", len(raw), HeaderLen)
	}
	copy(b.template[:], raw)
	return b, nil
}

// Push copies the MAC/IP/UDP templates onto the front of dst, which must
// have at least HeaderLen bytes of capacity, and returns HeaderLen. Callers
// append the RPC header and body immediately after the returned offset.
func (b *Builder) Push(dst []byte) int {
	copy(dst[:HeaderLen], b.template[:])
	return HeaderLen
}

// StampLengths patches the UDP and IP length fields of frame to account for
// udpPayloadLen bytes following the UDP header (the RPC header plus body).
// It must be called exactly once, after the RPC payload has been written
// into frame and before the frame is handed to the NIC. Calling it more
// than once, or not at all, is a programming error: the frame is left with
// whatever lengths were last stamped (or the placeholders), not a runtime
// fault.
func StampLengths(frame []byte, udpPayloadLen int) {
	udpLen := UDPLen + udpPayloadLen
	ipLen := IPLen + UDPLen + udpPayloadLen
	frame[udpLenOffset] = byte(udpLen >> 8)
	frame[udpLenOffset+1] = byte(udpLen)
	frame[ipTotalLenOffset] = byte(ipLen >> 8)
	frame[ipTotalLenOffset+1] = byte(ipLen)
}
