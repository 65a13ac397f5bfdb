package routing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"contact-automation/internal/classifier"
	"contact-automation/internal/coverage"
	"contact-automation/internal/crm"
	"contact-automation/internal/keypress"
	"contact-automation/internal/ledger"
	"contact-automation/internal/mailparse"
	"contact-automation/internal/schedule"
	"contact-automation/internal/voicemail"
)

// Tuesday.
var t0 = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubClassifier struct {
	res   classifier.Result
	err   error
	calls int
}

func (s *stubClassifier) Classify(context.Context, string, string) (classifier.Result, error) {
	s.calls++
	return s.res, s.err
}

// replyAdapter answers every completion with the same text.
type replyAdapter string

func (r replyAdapter) Complete(context.Context, string, string) (string, error) { return string(r), nil }

type stubCoverage struct {
	res   coverage.Result
	err   error
	addrs []string
}

func (s *stubCoverage) Check(_ context.Context, addr string) (coverage.Result, error) {
	s.addrs = append(s.addrs, addr)
	return s.res, s.err
}

type inlineSpawner struct{}

func (inlineSpawner) Go(_ string, fn func(ctx context.Context)) { fn(context.Background()) }

type stubAttacher struct{ tokens []string }

func (s *stubAttacher) Attach(_ context.Context, token string) { s.tokens = append(s.tokens, token) }

type countingRecorder struct {
	NopRecorder
	mu          sync.Mutex
	correlated  map[string]int
	lost        int
	orphans     int
	duplicates  int
	retriesOK   int
	retriesFail int
}

func (c *countingRecorder) Correlated(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.correlated == nil {
		c.correlated = map[string]int{}
	}
	c.correlated[s]++
}

func (c *countingRecorder) LeadLost(string) { c.mu.Lock(); c.lost++; c.mu.Unlock() }

func (c *countingRecorder) OrphanRouted() { c.mu.Lock(); c.orphans++; c.mu.Unlock() }

func (c *countingRecorder) DuplicateSuppressed() { c.mu.Lock(); c.duplicates++; c.mu.Unlock() }

func (c *countingRecorder) RetryAttempt(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.retriesOK++
	} else {
		c.retriesFail++
	}
}

type fixture struct {
	clock  *clock
	crm    *crm.MemoryGateway
	repo   *ledger.MemoryRepo
	ledger *ledger.Service
	cov    *stubCoverage
	rec    *countingRecorder
	router *Router
	snaps  *voicemail.MemoryStore
	keys   *keypress.Cache
	attach *stubAttacher
	pipe   *Pipeline
}

func newFixture(t *testing.T, cls Classifier) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &clock{t: t0}
	f := &fixture{
		clock:  c,
		crm:    crm.NewMemoryGateway(),
		repo:   ledger.NewMemoryRepo(),
		cov:    &stubCoverage{res: coverage.Result{Available: true}},
		rec:    &countingRecorder{},
		attach: &stubAttacher{},
	}
	f.ledger = ledger.NewService(f.repo).WithClock(c.Now)
	f.router = &Router{
		Classifier: cls,
		Summarizer: classifier.NewSummarizer(classifier.MockAdapter{}),
		Coverage:   f.cov,
		CRM:        f.crm,
		Ledger:     f.ledger,
		Window:     schedule.DefaultWindow(time.UTC),
		Metrics:    f.rec,
		Log:        log,
		Now:        c.Now,
	}
	f.snaps = voicemail.NewMemoryStore(24 * time.Hour).WithClock(c.Now)
	f.keys = keypress.NewCache(keypress.NewMemoryStore(), "0", time.Hour, log)
	f.pipe = &Pipeline{
		Keypress:   f.keys,
		Snapshots:  f.snaps,
		Resolver:   f.attach,
		Router:     f.router,
		Extractor:  mailparse.NewExtractor(nil, 0, log),
		Ledger:     f.ledger,
		Background: inlineSpawner{},
		Metrics:    f.rec,
		Log:        log,
		Now:        c.Now,
	}
	return f
}

// outcomes counts primary CRM artefacts: one ticket or one lead per call.
func (f *fixture) outcomes() int {
	leads, tickets, _ := f.crm.Counts()
	return leads + tickets
}
