// Package workload generates skewed synthetic (tenant, key, op-kind) request
// tuples: an independent Zipfian draw for the tenant, an independent
// Zipfian draw for the key index, and a uniform coin flip against
// put_pct to choose Get vs Put.
package workload

import (
	"fmt"
	"math/rand/v2"
)

// Kind distinguishes the two native operations a sample can describe.
type Kind int

const (
	Get Kind = iota
	Put
)

func (k Kind) String() string {
	if k == Get {
		return "Get"
	}
	return "Put"
}

// Config parameterizes the generator. All fields are required except Seed.
type Config struct {
	KeyLen, ValueLen int
	NKeys            int
	PutPct           int // [0,100]
	Skew             float64
	NTenants         int
	TenantSkew       float64
	Seed             uint64 // 0 picks a fixed default seed, for reproducible tests
}

func (c Config) validate() error {
	if c.KeyLen < 4 {
		return fmt.Errorf("workload: key_len must be at least 4 bytes to hold the sampled index")
	}
	if c.ValueLen < 0 {
		return fmt.Errorf("workload: value_len must be non-negative")
	}
	if c.NKeys < 1 {
		return fmt.Errorf("workload: n_keys must be at least 1")
	}
	if c.PutPct < 0 || c.PutPct > 100 {
		return fmt.Errorf("workload: put_pct must be in [0,100], got %d", c.PutPct)
	}
	if c.NTenants < 1 {
		return fmt.Errorf("workload: num_tenants must be at least 1")
	}
	return nil
}

// Op is one sampled request. Key and Value alias the Generator's internal
// buffers: they are valid only until the next call to Next on the same
// Generator, keeping the generator allocation-free on the hot path.
type Op struct {
	Kind   Kind
	Tenant uint32
	Key    []byte
	Value  []byte // nil for Get
}

// Generator draws samples from a seeded pseudo-random source. It is not
// safe for concurrent use; each core owns one Generator.
type Generator struct {
	cfg Config
	rng *rand.Rand

	keyZipf    *zipfSampler
	tenantZipf *zipfSampler

	keyBuf   []byte
	valueBuf []byte
}

// New constructs a Generator. The key buffer is allocated once here and
// reused (with only its first 4 bytes ever rewritten) for the lifetime of
// the Generator, so sampling never allocates.
func New(cfg Config) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 0x5eed5eed5eed5eed
	}
	g := &Generator{
		cfg:        cfg,
		rng:        rand.New(rand.NewPCG(seed, seed^0xa5a5a5a5a5a5a5a5)),
		keyZipf:    newZipfSampler(cfg.NKeys, cfg.Skew),
		tenantZipf: newZipfSampler(cfg.NTenants, cfg.TenantSkew),
		keyBuf:     make([]byte, cfg.KeyLen),
		valueBuf:   make([]byte, cfg.ValueLen),
	}
	return g, nil
}

// Next draws one fresh, independent sample. See Op for the aliasing caveat.
func (g *Generator) Next() Op {
	isGet := g.rng.IntN(100) >= g.cfg.PutPct

	tenant := uint32(g.tenantZipf.sample(g.rng.Float64))
	keyIndex := uint32(g.keyZipf.sample(g.rng.Float64))

	// Only the first 4 bytes ever change; the rest of keyBuf stays zero for
	// the Generator's whole lifetime.
	g.keyBuf[0] = byte(keyIndex)
	g.keyBuf[1] = byte(keyIndex >> 8)
	g.keyBuf[2] = byte(keyIndex >> 16)
	g.keyBuf[3] = byte(keyIndex >> 24)

	if isGet {
		return Op{Kind: Get, Tenant: tenant, Key: g.keyBuf}
	}
	return Op{Kind: Put, Tenant: tenant, Key: g.keyBuf, Value: g.valueBuf}
}
