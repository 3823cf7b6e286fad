package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/bench"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/config"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/headers"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/nic"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/rpcclient"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/store"
	"github.com/malbeclabs/rpcbench/tools/rpcbench/pkg/workload"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		iface       string
		numReqs     int
		cores       int
		useInvoke   bool
		putPct      int
		metricsAddr string
		verbose     bool
		rateLimit   float64
	)

	flag.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	flag.StringVarP(&iface, "iface", "i", "", "override net.interface")
	flag.IntVarP(&numReqs, "num-reqs", "n", 0, "override run.num_reqs")
	flag.IntVar(&cores, "cores", 0, "override run.cores")
	flag.BoolVar(&useInvoke, "use-invoke", false, "override workload.use_invoke")
	flag.IntVar(&putPct, "put-pct", -1, "override workload.put_pct")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flag.Float64Var(&rateLimit, "rate-limit", 0, "cap aggregate requests/sec across all cores, 0 disables")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	overrides := config.Overrides{Interface: iface, NumRequests: numReqs, Cores: cores, MetricsAddr: metricsAddr}
	if useInvoke {
		overrides.UseInvoke = &useInvoke
	}
	if putPct >= 0 {
		overrides.PutPct = &putPct
	}
	cfg.Apply(overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Run.LogLevel, verbose)

	if err := nic.RequirePrivileges(); err != nil {
		return fmt.Errorf("rpcbench-client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	if cfg.Run.MetricsAddr != "" {
		listener, err := net.Listen("tcp", cfg.Run.MetricsAddr)
		if err != nil {
			return fmt.Errorf("rpcbench-client: metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Info("serving prometheus metrics", "address", listener.Addr().String())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	st, err := store.New()
	if err != nil {
		return fmt.Errorf("rpcbench-client: %w", err)
	}
	st.RegisterExtension("pushback", &store.PushbackExtension{Store: st, TableID: cfg.Workload.TableID, NumReads: 4})

	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit))
	}

	corePool := pond.NewResultPool[*bench.Summary](cfg.Run.Cores)
	group := corePool.NewGroupContext(ctx)

	for core := 0; core < cfg.Run.Cores; core++ {
		core := core
		group.SubmitErr(func() (*bench.Summary, error) {
			summary, err := runCore(ctx, log, cfg, core, st, limiter, reg)
			if err != nil {
				return nil, fmt.Errorf("core %d: %w", core, err)
			}
			return summary, nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		return err
	}

	printSummary(results)
	return nil
}

func runCore(ctx context.Context, log *slog.Logger, cfg *config.Config, core int, st *store.Store, limiter *rate.Limiter, reg prometheus.Registerer) (*bench.Summary, error) {
	coreLog := log.With("core", core)

	pool := nic.NewPool(4096, 1500)
	sock, err := nic.NewRawSocket(cfg.Net.Interface, pool, 1500)
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	hb, err := headers.NewBuilder(headers.Config{
		SrcMAC:  mustMAC(cfg.Net.SrcMAC),
		DstMAC:  mustMAC(cfg.Net.DstMAC),
		SrcIP:   mustIPv4(cfg.Net.IPAddress),
		DstIP:   mustIPv4(cfg.Net.ServerAddress),
		SrcPort: uint16(cfg.Net.UDPPort),
		DstPort: uint16(cfg.Net.ServerUDPPort),
	})
	if err != nil {
		return nil, err
	}

	sender := rpcclient.NewSender(coreLog, sock, hb)
	receiver := rpcclient.NewReceiver(coreLog, sock)

	gen, err := workload.New(workload.Config{
		KeyLen:     cfg.Workload.KeyLen,
		ValueLen:   cfg.Workload.ValueLen,
		NKeys:      cfg.Workload.NKeys,
		PutPct:     cfg.Workload.PutPct,
		Skew:       cfg.Workload.Skew,
		NTenants:   cfg.Workload.NumTenants,
		TenantSkew: cfg.Workload.TenantSkew,
		Seed:       uint64(core) + 1,
	})
	if err != nil {
		return nil, err
	}

	metrics := bench.NewMetrics(prometheus.WrapRegistererWith(prometheus.Labels{"core": fmt.Sprint(core)}, reg), cfg.Run.NumRequests)
	clock := bench.NewClock(clockwork.NewRealClock())
	loop := bench.NewLoop(bench.Config{
		UseInvoke:       cfg.Workload.UseInvoke,
		TargetRequests:  cfg.Run.NumRequests,
		TargetResponses: cfg.Run.NumRequests,
		TableID:         cfg.Workload.TableID,
		NumOps:          cfg.Workload.NumOps,
		NumMul:          cfg.Run.NumMul,
		ReportEvery:     cfg.Run.ReportEvery,
		Window:          cfg.Run.Window,
	}, coreLog, clock, gen, sender, receiver, st, metrics)

	for !loop.Done() {
		select {
		case <-ctx.Done():
			summary := metrics.Summarize()
			return &summary, ctx.Err()
		default:
		}
		sentBefore := loop.Sent()
		if err := loop.Execute(); err != nil {
			return nil, err
		}
		if limiter != nil {
			for i := sentBefore; i < loop.Sent(); i++ {
				_ = limiter.Wait(ctx)
			}
		}
	}
	summary := metrics.Summarize()
	return &summary, nil
}

func newLogger(levelName string, verbose bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func printSummary(results []*bench.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Core", "Completed", "Dropped", "Ops/sec", "Median (µs)", "P99 (µs)"})
	for i, s := range results {
		if s == nil {
			continue
		}
		fmt.Printf("core %d: throughput=%.0f ops/s median=%dns p99=%dns\n", i, s.ThroughputOps, s.MedianLatency.Nanoseconds(), s.P99Latency.Nanoseconds())
		table.Append([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", s.Completed),
			fmt.Sprintf("%d", s.Dropped),
			fmt.Sprintf("%.0f", s.ThroughputOps),
			fmt.Sprintf("%.1f", float64(s.MedianLatency.Microseconds())),
			fmt.Sprintf("%.1f", float64(s.P99Latency.Microseconds())),
		})
	}
	table.Render()
}

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad MAC address %q: %v\n", s, err)
		os.Exit(2)
	}
	return mac
}

func mustIPv4(s string) net.IP {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		fmt.Fprintf(os.Stderr, "bad IPv4 address: %s\n", s)
		os.Exit(2)
	}
	return ip
}
