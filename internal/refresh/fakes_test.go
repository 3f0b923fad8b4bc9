package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/storage/memory"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// fakeAdapter serves "fake://<provider>/<keyword id>" requests. Response bodies are
// newline separated result URLs, or "ERROR <code> <message>" for an in-band error.
type fakeAdapter struct {
	id          string
	parallel    bool
	minDelay    time.Duration
	perKeyword  bool
	rejectCreds string
}

func (a *fakeAdapter) ID() string   { return a.id }
func (a *fakeAdapter) Name() string { return strings.ToUpper(a.id) }

func (a *fakeAdapter) BuildRequest(kw tracker.KeywordRecord, s tracker.Settings) (tracker.Request, bool) {
	if a.rejectCreds != "" && s.Credentials == a.rejectCreds {
		return tracker.Request{}, false
	}
	return tracker.Request{URL: "fake://" + a.id + "/" + kw.ID, Body: tracker.BodyText}, true
}

func (a *fakeAdapter) ParseResponse(body []byte) ([]tracker.ResultItem, *provider.ProviderError) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(text, "ERROR "); ok {
		code, msg, _ := strings.Cut(rest, " ")
		return nil, &provider.ProviderError{Code: code, Message: msg}
	}
	var items []tracker.ResultItem
	for i, line := range strings.Split(text, "\n") {
		items = append(items, tracker.ResultItem{Title: fmt.Sprintf("r%d", i+1), URL: strings.TrimSpace(line), Position: i + 1})
	}
	return items, nil
}

func (a *fakeAdapter) MinimumDelay() time.Duration { return a.minDelay }
func (a *fakeAdapter) PerKeywordOnly() bool        { return a.perKeyword }
func (a *fakeAdapter) Parallel() bool              { return a.parallel }
func (a *fakeAdapter) BodyType() tracker.BodyType  { return tracker.BodyText }

type response struct {
	body string
	err  error
}

// fakeTransport answers by keyword id (the last URL path segment) and records dispatches.
type fakeTransport struct {
	mu         sync.Mutex
	responses  map[string]response
	clock      *fakeClock
	dispatched []string
	times      []time.Time
	inFlight   int
	maxFlight  int
	gate       chan struct{}
	started    chan string
}

func newFakeTransport(clk *fakeClock) *fakeTransport {
	return &fakeTransport{responses: make(map[string]response), clock: clk}
}

func (f *fakeTransport) respond(keywordID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[keywordID] = response{body: body}
}

func (f *fakeTransport) fail(keywordID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[keywordID] = response{err: err}
}

func (f *fakeTransport) Do(_ context.Context, req tracker.Request) ([]byte, error) {
	key := req.URL[strings.LastIndex(req.URL, "/")+1:]
	f.mu.Lock()
	f.dispatched = append(f.dispatched, req.URL)
	if f.clock != nil {
		f.times = append(f.times, f.clock.Now())
	}
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	resp := f.responses[key]
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- key
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if resp.err != nil {
		return nil, resp.err
	}
	return []byte(resp.body), nil
}

func (f *fakeTransport) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingSleeper advances the fake clock instead of blocking.
type recordingSleeper struct {
	mu     sync.Mutex
	clock  *fakeClock
	sleeps []time.Duration
	onCall func(n int)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.clock != nil {
		s.clock.Advance(d)
	}
	return nil
}

func (s *recordingSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.sleeps {
		sum += d
	}
	return sum
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("batch-%d", s.n), nil
}

// flakyStore fails Update for selected ids.
type flakyStore struct {
	*memory.KeywordStore
	failIDs map[string]bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Update(ctx context.Context, id string, u tracker.KeywordUpdate) error {
	if s.failIDs[id] {
		return errDiskFull
	}
	return s.KeywordStore.Update(ctx, id, u)
}
