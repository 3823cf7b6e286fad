package task

import "github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/wire"

// Manager is the per-invoke state tracked from the moment an invoke() is
// sent until its extension completes. Until a Pushback response installs
// a generator, a Manager sits in the pending map as inert bookkeeping;
// InstallPushback is what makes it runnable.
type Manager struct {
	// Tenant is the originating tenant id.
	Tenant uint32
	// Payload is name ‖ args, immutable for the Manager's lifetime so the
	// generator can be re-seeded from it if ever needed.
	Payload []byte
	// NameLen splits Payload into the extension name and its arguments.
	NameLen uint32
	// ID is the 64-bit send timestamp that keyed this Manager in the
	// pending map.
	ID uint64

	// ReadSet is the read-set snapshot the server handed over with its
	// Pushback response. Empty until InstallPushback runs.
	ReadSet []wire.Record

	gen *Generator
}

// NewManager creates a Manager for a freshly sent invoke(), to be inserted
// into the pending map keyed by ID.
func NewManager(tenant uint32, payload []byte, nameLen uint32, id uint64) *Manager {
	return &Manager{Tenant: tenant, Payload: payload, NameLen: nameLen, ID: id}
}

// Name returns the extension name encoded at the front of Payload.
func (m *Manager) Name() string { return string(m.Payload[:m.NameLen]) }

// Runnable reports whether InstallPushback has given this Manager a live
// generator.
func (m *Manager) Runnable() bool { return m.gen != nil }

// InstallPushback makes a Manager runnable, ready for the caller to move
// it from the pending map onto the runnable queue: it records the server's
// partial read-set and lazily builds the generator that will re-execute
// the extension against store.
func (m *Manager) InstallPushback(records []wire.Record, store Store) {
	m.ReadSet = records
	rwset := make(map[string][]byte, len(records))
	for _, r := range records {
		rwset[string(r.Key)] = r.Value
	}
	m.gen = newGenerator(m.Name(), m.Tenant, rwset, store)
}

// Step resumes the installed generator by one unit of work. Calling Step
// before InstallPushback is a programming error.
func (m *Manager) Step() State {
	if m.gen == nil {
		panic("task: Step called on a Manager with no installed generator")
	}
	return m.gen.Step()
}

// Result returns the extension's final output once Step has returned
// Completed.
func (m *Manager) Result() []byte {
	if m.gen == nil {
		return nil
	}
	return m.gen.Result()
}
