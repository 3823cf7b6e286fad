package nic

// NIC is the minimal transport surface Loop needs: allocate a frame to
// populate, send a batch of populated frames, and drain whatever has
// arrived since the last poll. Implementations must never block — the
// cooperative per-core loop has no other way to make progress while
// waiting.
type NIC interface {
	// AllocFrame draws one frame from the NIC's pool. Returns
	// ErrPoolExhausted if none are free.
	AllocFrame() (*Frame, error)

	// Send hands a batch of populated frames to the transport. It returns
	// the number actually accepted; a short count is not an error on its
	// own, matching a real ring buffer that can be momentarily full. Every
	// frame in batch, sent or not, is released back to the pool before
	// Send returns: the caller never reuses a frame after passing it here.
	Send(batch []*Frame) (sent uint32, err error)

	// Recv returns whatever frames have arrived since the last call,
	// without blocking. A nil or empty result means nothing is ready yet.
	// The caller owns the returned frames and must Release each one.
	Recv() []*Frame
}
