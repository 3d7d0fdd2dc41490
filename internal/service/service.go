package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/RealKorush/bahbah/internal/collector"
	"github.com/RealKorush/bahbah/internal/decoder"
	"github.com/RealKorush/bahbah/internal/domain"
	"github.com/RealKorush/bahbah/internal/ports"
)

// Policy selects how links are admitted into probe slots.
type Policy string

const (
	// PolicyChunk probes consecutive chunks of Concurrency links and waits for
	// a whole chunk to settle before starting the next one.
	PolicyChunk Policy = "chunk"
	// PolicyWindow keeps Concurrency workers busy, starting a new probe as
	// soon as any slot frees.
	PolicyWindow Policy = "window"
)

const (
	DefaultConcurrency     = 1000
	DefaultBreakerCooldown = 30 * time.Second
	DefaultPersistBackoff  = time.Second
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyChunk:
		return PolicyChunk, nil
	case PolicyWindow:
		return PolicyWindow, nil
	}
	return "", fmt.Errorf("unknown policy %q", s)
}

type Options struct {
	Concurrency int
	Policy      Policy

	// RateLimit caps probe starts per second; 0 disables pacing.
	RateLimit float64
	RateBurst int

	// BreakerThreshold is the number of consecutive dead probes to one
	// address after which further links to it are marked dead unprobed.
	// 0 disables the breaker.
	BreakerThreshold uint32
	// BreakerCooldown is how long an open target is skipped before it is
	// probed again. Defaults to DefaultBreakerCooldown.
	BreakerCooldown time.Duration

	// PersistBackoff is the base delay between SaveRun attempts; attempt n
	// waits n*PersistBackoff. Defaults to DefaultPersistBackoff.
	PersistBackoff time.Duration

	Metrics *Metrics
	Logger  *slog.Logger
}

type Service struct {
	prober           ports.Prober
	concurrency      int
	policy           Policy
	limiter          *rate.Limiter
	breakerThreshold uint32
	breakerCooldown  time.Duration
	persistBackoff   time.Duration
	now              func() time.Time
	metrics          *Metrics
	logger           *slog.Logger
}

func New(prober ports.Prober, opts Options) *Service {
	s := &Service{
		prober:           prober,
		concurrency:      opts.Concurrency,
		policy:           opts.Policy,
		breakerThreshold: opts.BreakerThreshold,
		breakerCooldown:  opts.BreakerCooldown,
		persistBackoff:   opts.PersistBackoff,
		now:              time.Now,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.policy == "" {
		s.policy = PolicyChunk
	}
	if s.breakerCooldown <= 0 {
		s.breakerCooldown = DefaultBreakerCooldown
	}
	if s.persistBackoff <= 0 {
		s.persistBackoff = DefaultPersistBackoff
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run decodes and probes every link and returns one record per link in input
// order. Per-link failures never abort the run; a cancelled ctx makes the
// remaining probes fail fast and report dead.
func (s *Service) Run(ctx context.Context, links []string, onRecord func(domain.Record)) ([]domain.Record, error) {
	start := time.Now()
	s.logger.Info("run started", "links", len(links), "concurrency", s.concurrency, "policy", s.policy)

	breaker := newTargetBreaker(s.breakerThreshold, s.breakerCooldown, s.now)

	col := collector.New(len(links))
	results := make(chan collector.Entry, s.concurrency)
	drained := make(chan error, 1)
	go func() { drained <- col.Drain(results) }()

	emit := func(i int) {
		rec := s.checkLink(ctx, breaker, links[i])
		results <- collector.Entry{Index: i, Record: rec}
		if onRecord != nil {
			onRecord(rec)
		}
	}

	if s.policy == PolicyWindow {
		s.runWindow(len(links), emit)
	} else {
		s.runChunks(len(links), emit)
	}

	close(results)
	if err := <-drained; err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}
	records, err := col.Records()
	if err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}

	sum := domain.Summarize(records)
	s.logger.Info("run completed",
		"links", sum.Total,
		"alive", sum.Alive,
		"dead", sum.Dead,
		"invalid", sum.Invalid,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

func (s *Service) runChunks(n int, emit func(int)) {
	for lo := 0; lo < n; lo += s.concurrency {
		hi := min(lo+s.concurrency, n)
		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				emit(i)
			}(i)
		}
		wg.Wait()
	}
}

func (s *Service) runWindow(n int, emit func(int)) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.concurrency, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				emit(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (s *Service) checkLink(ctx context.Context, breaker *targetBreaker, link string) domain.Record {
	s.metrics.link()

	target, err := decoder.Decode(link)
	if err != nil {
		s.logger.Debug("link rejected", "link", link, "error", err)
		rec := domain.InvalidRecord(link)
		s.metrics.observe(rec)
		return rec
	}

	addr := target.Address()
	if !breaker.shouldProbe(target) {
		s.logger.Debug("probe skipped by breaker", "address", addr)
		rec := domain.DeadRecord(link, target)
		s.metrics.skip()
		s.metrics.observe(rec)
		return rec
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			rec := domain.DeadRecord(link, target)
			s.metrics.observe(rec)
			return rec
		}
	}

	s.metrics.probeStarted()
	out := s.prober.Probe(ctx, target)
	s.metrics.probeFinished()

	rec := domain.RecordFor(link, target, out)
	breaker.observe(target, rec.Status)
	s.logger.Debug("probe finished", "address", addr, "status", rec.Status)
	s.metrics.observe(rec)
	return rec
}
