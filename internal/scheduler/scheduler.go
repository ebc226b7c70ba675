// Package scheduler is the orchestrating state machine: it polls the
// ingestion source, the clock, and the digest calendar, and drives
// filter -> dedup -> synthesizer -> gate, or digest builder -> gate.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"cryptopost_bot/internal/config"
	"cryptopost_bot/internal/dedup"
	"cryptopost_bot/internal/digest"
	"cryptopost_bot/internal/filter"
	"cryptopost_bot/internal/gate"
	"cryptopost_bot/internal/ingest"
	"cryptopost_bot/internal/model"
)

// State names the scheduler's position in its cycle.
type State string

// Scheduler states.
const (
	StateIdle           State = "idle"
	StateCheckingNews   State = "checking_news"
	StateEmittingDigest State = "emitting_digest"
	StateBackoff        State = "backoff"
)

// Synthesizer converts payloads into post text.
type Synthesizer interface {
	NewsPost(ctx context.Context, item model.NewsItem) (string, error)
	PricePost(ctx context.Context, snap model.PriceSnapshot, slot model.DigestSlot) (string, error)
}

// DigestBuilder builds the twice-daily market summary.
type DigestBuilder interface {
	Build(ctx context.Context, slot model.DigestSlot) (digest.Digest, error)
}

// Publisher is the serialized outbound path.
type Publisher interface {
	Publish(ctx context.Context, content gate.Content) error
}

// ScheduleState is the scheduler's only mutable state. It lives in memory
// and is re-derived from the wall clock on restart.
type ScheduleState struct {
	LastNewsCheck     time.Time
	LastDigestEmitted map[model.DigestSlot]string
	NextWakeup        time.Time
}

type counters struct {
	newsPublished    int
	digestsPublished int
	itemsSkipped     int
	cyclesFailed     int
}

// Scheduler runs the indefinite publish loop.
type Scheduler struct {
	source  ingest.Source
	filter  *filter.Engine
	dedup   *dedup.Deduplicator
	synth   Synthesizer
	digests DigestBuilder
	gate    Publisher
	log     *slog.Logger

	baseInterval time.Duration
	jitterBand   time.Duration
	minInterval  time.Duration
	backoffDelay time.Duration
	maxRetries   int
	pullTimeout  time.Duration
	llmTimeout   time.Duration
	priceTimeout time.Duration
	lookback     time.Duration
	recheck      bool
	loc          *time.Location
	windows      map[model.DigestSlot]config.DigestWindow

	mu      sync.Mutex
	state   ScheduleState
	current State
	stats   counters
	targets map[string]time.Time

	now func() time.Time
	rng *rand.Rand
}

// New creates a Scheduler from its collaborators and configuration.
func New(cfg *config.Config, source ingest.Source, f *filter.Engine, d *dedup.Deduplicator,
	s Synthesizer, db DigestBuilder, g Publisher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		source:  source,
		filter:  f,
		dedup:   d,
		synth:   s,
		digests: db,
		gate:    g,
		log:     log,

		baseInterval: cfg.BaseInterval,
		jitterBand:   cfg.JitterBand,
		minInterval:  cfg.MinInterval,
		backoffDelay: cfg.BackoffDelay,
		maxRetries:   cfg.MaxRetries,
		pullTimeout:  cfg.PullTimeout,
		llmTimeout:   cfg.LLMTimeout,
		priceTimeout: cfg.PriceTimeout,
		lookback:     cfg.LookbackMax,
		recheck:      cfg.RecheckOutput,
		loc:          cfg.Location(),
		windows: map[model.DigestSlot]config.DigestWindow{
			model.SlotMorning: cfg.Morning,
			model.SlotEvening: cfg.Evening,
		},

		state: ScheduleState{
			LastDigestEmitted: make(map[model.DigestSlot]string),
		},
		current: StateIdle,
		targets: make(map[string]time.Time),

		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter, not crypto
	}
}

// SetClock overrides the time source for deterministic tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetRand overrides the jitter source for deterministic tests.
func (s *Scheduler) SetRand(rng *rand.Rand) {
	s.rng = rng
}

// Run drives the state machine until ctx is cancelled. Shutdown is
// cooperative: the in-flight action finishes, then the loop exits.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.state.LastNewsCheck = s.now().Add(-s.lookback)
	s.mu.Unlock()

	s.log.Info("scheduler started",
		"base_interval", s.baseInterval, "jitter_band", s.jitterBand,
		"timezone", s.loc.String())

	for {
		if ctx.Err() != nil {
			s.log.Info("scheduler stopped")
			return
		}

		if slot, due := s.dueDigestSlot(s.now()); due {
			s.setState(StateEmittingDigest)
			s.runDigest(ctx, slot)
		} else {
			s.setState(StateCheckingNews)
			s.runNewsCheck(ctx)
		}

		s.dedup.Prune(ctx)

		wake := s.computeNextWakeup(s.now())
		s.setState(StateIdle)
		if !s.sleepUntil(ctx, wake) {
			s.log.Info("scheduler stopped")
			return
		}
	}
}

// NextInterval returns a randomized pause: base plus a uniform offset in
// (-band, +band). Pure apart from the rng argument.
func NextInterval(base, band time.Duration, rng *rand.Rand) time.Duration {
	if band <= 0 {
		return base
	}
	offset := time.Duration(rng.Int63n(int64(2*band))) - band
	return base + offset
}

// computeNextWakeup picks the jittered news-check wakeup, pulled earlier
// if a digest window lands first. Always at least minInterval ahead.
func (s *Scheduler) computeNextWakeup(now time.Time) time.Time {
	d := NextInterval(s.baseInterval, s.jitterBand, s.rng)
	if d < s.minInterval {
		d = s.minInterval
	}
	wake := now.Add(d)

	if target, ok := s.nextDigestTarget(now); ok && target.Before(wake) {
		wake = target
		if floor := now.Add(s.minInterval); wake.Before(floor) {
			wake = floor
		}
	}

	s.mu.Lock()
	s.state.NextWakeup = wake
	s.mu.Unlock()
	return wake
}

func (s *Scheduler) sleepUntil(ctx context.Context, wake time.Time) bool {
	d := wake.Sub(s.now())
	if d < s.minInterval {
		d = s.minInterval
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
}

// StatusLine implements bot.StatusReporter.
func (s *Scheduler) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	wake := "n/a"
	if !s.state.NextWakeup.IsZero() {
		wake = s.state.NextWakeup.In(s.loc).Format("15:04:05")
	}
	return fmt.Sprintf(
		"state: %s\nnext wakeup: %s\nnews published: %d\ndigests published: %d\nitems skipped: %d\nfailed cycles: %d\ndedup keys: %d",
		s.current, wake, s.stats.newsPublished, s.stats.digestsPublished,
		s.stats.itemsSkipped, s.stats.cyclesFailed, s.dedup.Len())
}
