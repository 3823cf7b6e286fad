// Package config loads and validates rpcbench-client's run parameters:
// addressing, workload shape, and the native-vs-invoke mode switch.
// Precedence is CLI flags over a loaded TOML file over built-in defaults.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the complete set of parameters one rpcbench-client run needs.
type Config struct {
	Net      NetConfig      `toml:"net"`
	Workload WorkloadConfig `toml:"workload"`
	Run      RunConfig      `toml:"run"`
}

// NetConfig describes the raw-socket addressing a Loop's Sender/Receiver
// pair needs to build and stamp frames.
type NetConfig struct {
	Interface     string `toml:"interface"`
	SrcMAC        string `toml:"src_mac"`
	DstMAC        string `toml:"dst_mac"`
	IPAddress     string `toml:"ip_address"`
	ServerAddress string `toml:"server_ip_address"`
	UDPPort       int    `toml:"udp_port"`
	ServerUDPPort int    `toml:"server_udp_port"`
}

// WorkloadConfig mirrors workload.Config's tunables, plus the native/invoke
// mode switch and the table every Get/Put addresses.
type WorkloadConfig struct {
	KeyLen     int     `toml:"key_len"`
	ValueLen   int     `toml:"value_len"`
	NKeys      int     `toml:"n_keys"`
	PutPct     int     `toml:"put_pct"`
	Skew       float64 `toml:"skew"`
	NumTenants int     `toml:"num_tenants"`
	TenantSkew float64 `toml:"tenant_skew"`
	TableID    uint64  `toml:"table_id"`
	UseInvoke  bool    `toml:"use_invoke"`
	NumOps     int     `toml:"num_ops"`
}

// RunConfig controls run length, core count, and ambient concerns.
type RunConfig struct {
	NumRequests int    `toml:"num_reqs"`
	Cores       int    `toml:"cores"`
	Window      int    `toml:"window"`
	NumMul      int    `toml:"num_mul"`
	ReportEvery int    `toml:"report_every"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// Default returns a Config with reasonable values for every field left
// unset by a config file or flag override.
func Default() *Config {
	return &Config{
		Net: NetConfig{
			Interface:     "eth0",
			SrcMAC:        "02:00:00:00:00:01",
			DstMAC:        "02:00:00:00:00:02",
			IPAddress:     "10.0.0.1",
			ServerAddress: "10.0.0.2",
			UDPPort:       9000,
			ServerUDPPort: 9001,
		},
		Workload: WorkloadConfig{
			KeyLen:     8,
			ValueLen:   8,
			NKeys:      1000,
			PutPct:     0,
			Skew:       0.99,
			NumTenants: 1,
			NumOps:     1,
		},
		Run: RunConfig{
			NumRequests: 1_000_000,
			Cores:       1,
			Window:      32,
			ReportEvery: 100_000,
			LogLevel:    "info",
		},
	}
}

// Load reads path as TOML over top of Default. An empty path returns
// Default unmodified.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Overrides are the flag values the CLI entrypoint applies on top of a
// loaded Config. A zero/empty field leaves the loaded value untouched.
type Overrides struct {
	Interface   string
	NumRequests int
	Cores       int
	UseInvoke   *bool
	PutPct      *int
	MetricsAddr string
}

// Apply layers non-zero Overrides fields onto c. Flags beat whatever the
// config file or Default already set.
func (c *Config) Apply(o Overrides) {
	if o.Interface != "" {
		c.Net.Interface = o.Interface
	}
	if o.NumRequests > 0 {
		c.Run.NumRequests = o.NumRequests
	}
	if o.Cores > 0 {
		c.Run.Cores = o.Cores
	}
	if o.UseInvoke != nil {
		c.Workload.UseInvoke = *o.UseInvoke
	}
	if o.PutPct != nil {
		c.Workload.PutPct = *o.PutPct
	}
	if o.MetricsAddr != "" {
		c.Run.MetricsAddr = o.MetricsAddr
	}
}

// Validate checks field ranges a misconfigured run would otherwise fail on
// deep inside the hot path, where a clear error is harder to surface.
func (c *Config) Validate() error {
	if c.Net.Interface == "" {
		return fmt.Errorf("config: net.interface is required")
	}
	if c.Net.UDPPort == 0 || c.Net.ServerUDPPort == 0 {
		return fmt.Errorf("config: net.udp_port and net.server_udp_port are required")
	}
	if _, err := net.ParseMAC(c.Net.SrcMAC); err != nil {
		return fmt.Errorf("config: net.src_mac is invalid: %w", err)
	}
	if _, err := net.ParseMAC(c.Net.DstMAC); err != nil {
		return fmt.Errorf("config: net.dst_mac is invalid: %w", err)
	}
	if net.ParseIP(c.Net.IPAddress).To4() == nil {
		return fmt.Errorf("config: net.ip_address must be a valid IPv4 address")
	}
	if net.ParseIP(c.Net.ServerAddress).To4() == nil {
		return fmt.Errorf("config: net.server_ip_address must be a valid IPv4 address")
	}
	if c.Workload.KeyLen < 4 {
		return fmt.Errorf("config: workload.key_len must be at least 4")
	}
	if c.Workload.PutPct < 0 || c.Workload.PutPct > 100 {
		return fmt.Errorf("config: workload.put_pct must be in [0,100]")
	}
	if c.Workload.NumTenants < 1 {
		return fmt.Errorf("config: workload.num_tenants must be at least 1")
	}
	if c.Run.NumRequests < 1 {
		return fmt.Errorf("config: run.num_reqs must be at least 1")
	}
	if c.Run.Cores < 1 {
		return fmt.Errorf("config: run.cores must be at least 1")
	}
	return nil
}
