package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RealKorush/bahbah/internal/app"
	"github.com/RealKorush/bahbah/internal/config"
	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/input"
	"github.com/RealKorush/bahbah/internal/ports"
	"github.com/RealKorush/bahbah/internal/report"
	"github.com/RealKorush/bahbah/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("linkchecker failed", "error", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	input       string
	output      string
	concurrency int
	timeout     float64
	policy      string
	rate        float64
	burst       int
	via         string
	db          string
	breaker     uint
	metricsFile string
	progress    bool
	logLevel    string
	logFormat   string
}

func parseFlags(args []string, stderr io.Writer) (*config.Config, bool, error) {
	var f flags
	fs := flag.NewFlagSet("linkchecker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.input, "input", "configs.txt", "file with one proxy link per line")
	fs.StringVar(&f.output, "output", "results.csv", "report path (.csv or .pdf)")
	fs.IntVar(&f.concurrency, "concurrency", service.DefaultConcurrency, "max probes in flight")
	fs.Float64Var(&f.timeout, "timeout", 3.0, "TCP connect timeout in seconds")
	fs.StringVar(&f.policy, "policy", "chunk", "admission policy: chunk or window")
	fs.Float64Var(&f.rate, "rate", 0, "max probe starts per second (0 = unlimited)")
	fs.IntVar(&f.burst, "burst", 1, "probe start burst when --rate is set")
	fs.StringVar(&f.via, "via", "", "dial through an upstream proxy, e.g. socks5://127.0.0.1:1080")
	fs.StringVar(&f.db, "db", "", "store the run in a database (sqlite3://path or postgres://...)")
	fs.UintVar(&f.breaker, "breaker-threshold", 0, "skip an address after this many dead probes (0 = off)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	fs.BoolVar(&f.progress, "progress", false, "show a progress bar on stderr")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, false, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "input":
			cfg.Input = f.input
		case "output":
			cfg.Output = f.output
		case "concurrency":
			cfg.Concurrency = f.concurrency
		case "timeout":
			cfg.Timeout = time.Duration(f.timeout * float64(time.Second))
		case "policy":
			cfg.Policy = f.policy
		case "rate":
			cfg.RateLimit = f.rate
		case "burst":
			cfg.RateBurst = f.burst
		case "via":
			cfg.UpstreamProxy = f.via
		case "db":
			cfg.DatabaseURL = f.db
		case "breaker-threshold":
			cfg.BreakerThreshold = uint32(f.breaker)
		case "metrics-file":
			cfg.MetricsFile = f.metricsFile
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "log-format":
			cfg.LogFormat = f.logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, f.progress, nil
}

// run executes one check. Everything that can fail for reasons outside a
// single link (config, input, database, output) is checked before probing.
// The report replaces the previous one only once it is fully written.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, progress, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}

	links, err := input.ReadLinks(cfg.Input)
	if err != nil {
		return err
	}

	var store ports.RunStorage
	if cfg.DatabaseURL != "" {
		st, closer, err := app.OpenStorage(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
		store = st
	}

	reg := prometheus.NewRegistry()
	svc, err := app.NewService(cfg, service.NewMetrics(reg), logger)
	if err != nil {
		return err
	}

	out, err := report.Create(cfg.Output)
	if err != nil {
		return err
	}
	defer out.Abort()

	var onRecord func(domain.Record)
	if progress {
		bar := pb.New(len(links))
		bar.SetWriter(stderr)
		bar.SetTemplate(`{{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		bar.Start()
		defer bar.Finish()
		onRecord = func(domain.Record) { bar.Increment() }
	}

	records, err := svc.Run(ctx, links, onRecord)
	if err != nil {
		return err
	}

	runRec := &domain.Run{CreatedAt: time.Now().UTC(), Records: records}
	if err := report.Write(out, report.FormatFor(cfg.Output), runRec); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := out.Commit(); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			logger.Error("write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	fmt.Fprintf(stdout, "✓ saved %d results → %s\n", len(records), cfg.Output)

	if store != nil {
		stored, err := svc.SaveRun(store, records)
		if err != nil {
			return fmt.Errorf("store run: %w", err)
		}
		logger.Info("run stored", "run_id", stored.ID)
	}
	return nil
}
