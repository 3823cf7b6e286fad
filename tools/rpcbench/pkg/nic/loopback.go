package nic

// Responder is the in-process stand-in for the master database service:
// given one request frame's payload, it emits zero or more response
// payloads via emit. A Responder may call emit more than once (e.g. an
// invoke() that first answers Ok and later, on a different request, answers
// Pushback) or not at all (to model a dropped or delayed response).
type Responder interface {
	Respond(req []byte, emit func(resp []byte))
}

// Loopback is a NIC backend that never touches the network: Send hands
// each frame's payload directly to a Responder and queues whatever it
// emits for the next Recv. It exists so Loop, TaskManager, and the
// scenario tests in pkg/bench can run deterministically without a real
// socket, the same role tools/twamp's in-memory light-sender tests play
// for that package's RTT measurement logic.
type Loopback struct {
	pool      *Pool
	responder Responder
	rx        []*Frame
}

// NewLoopback builds a Loopback NIC backed by responder, drawing frames
// from pool.
func NewLoopback(pool *Pool, responder Responder) *Loopback {
	return &Loopback{pool: pool, responder: responder}
}

func (l *Loopback) AllocFrame() (*Frame, error) { return l.pool.Alloc() }

// Send feeds every frame in batch to the responder synchronously, queuing
// any emitted responses for the next Recv, then releases all of them. It
// always reports the full batch as sent: a synchronous in-process backend
// has no ring to overflow.
func (l *Loopback) Send(batch []*Frame) (uint32, error) {
	for _, f := range batch {
		l.responder.Respond(f.Bytes(), func(resp []byte) {
			rf, err := l.pool.Alloc()
			if err != nil {
				// No free frame to hold the response: drop it, same as a
				// real RX ring that is momentarily full.
				return
			}
			n := copy(rf.buf, resp)
			rf.SetLen(n)
			l.rx = append(l.rx, rf)
		})
		f.Release()
	}
	return uint32(len(batch)), nil
}

// InjectResponse queues data as if it had arrived over the network,
// bypassing the Responder. Tests use this to model a server that delays
// its replies: buffer the requests it would otherwise answer immediately,
// then call InjectResponse once the test decides to let them through.
func (l *Loopback) InjectResponse(data []byte) error {
	f, err := l.pool.Alloc()
	if err != nil {
		return err
	}
	n := copy(f.buf, data)
	f.SetLen(n)
	l.rx = append(l.rx, f)
	return nil
}

// Recv returns and clears whatever responses have queued up.
func (l *Loopback) Recv() []*Frame {
	if len(l.rx) == 0 {
		return nil
	}
	out := l.rx
	l.rx = nil
	return out
}
