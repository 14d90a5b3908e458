package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/catalog"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/locker"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/render"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

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

type fakeInterpreter struct {
	mu    sync.Mutex
	calls []interpretation.Request
	fn    func(req interpretation.Request) (*interpretation.NarrativeSet, error)
}

func (f *fakeInterpreter) Interpret(ctx context.Context, req interpretation.Request) (*interpretation.NarrativeSet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return &interpretation.NarrativeSet{
			Summary:  "A steady path.",
			Sections: map[string]string{"life_path": "You build slowly and well."},
		}, nil
	}
	return fn(req)
}

func (f *fakeInterpreter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type renderFunc func(in render.Input) (*render.Document, error)

func (f renderFunc) Render(in render.Input) (*render.Document, error) { return f(in) }

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (s *fakeStore) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = append([]byte(nil), content...)
	return "mem://" + key, nil
}

func (s *fakeStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.objects {
		if "mem://"+k == ref {
			return v, render.ContentTypeHTML, nil
		}
	}
	return nil, "", errors.New("not found")
}

type sentDocument struct {
	UserID   string
	Filename string
	Content  []byte
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []string
	docs     []sentDocument
	docErr   error
}

func (t *fakeTransport) SendMessage(ctx context.Context, userID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, text)
	return nil
}

func (t *fakeTransport) SendDocument(ctx context.Context, userID string, content []byte, filename string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.docErr != nil {
		return t.docErr
	}
	t.docs = append(t.docs, sentDocument{UserID: userID, Filename: filename, Content: content})
	return nil
}

func (t *fakeTransport) LastMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[len(t.messages)-1]
}

type scheduledAdvance struct {
	OrderID string
	Delay   time.Duration
	Reason  string
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledAdvance
}

func (s *fakeScheduler) ScheduleAdvance(ctx context.Context, orderID string, delay time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledAdvance{OrderID: orderID, Delay: delay, Reason: reason})
	return nil
}

func (s *fakeScheduler) Calls() []scheduledAdvance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledAdvance(nil), s.calls...)
}

func (s *fakeScheduler) Last() scheduledAdvance {
	calls := s.Calls()
	if len(calls) == 0 {
		return scheduledAdvance{}
	}
	return calls[len(calls)-1]
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) AlertOperator(ctx context.Context, subject, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, fmt.Sprintf("%s\n%s", subject, body))
	return nil
}

type harness struct {
	o           *Orchestrator
	orders      *repository.MemoryOrderRepository
	interpreter *fakeInterpreter
	store       *fakeStore
	transport   *fakeTransport
	scheduler   *fakeScheduler
	alerter     *fakeAlerter
	locks       *locker.MemoryLocker
	clock       *fakeClock
}

func newHarness(t *testing.T, cfg Config, renderer Renderer) *harness {
	t.Helper()
	if renderer == nil {
		r, err := render.NewRenderer()
		require.NoError(t, err)
		renderer = r
	}
	h := &harness{
		orders:      repository.NewMemoryOrderRepository(),
		interpreter: &fakeInterpreter{},
		store:       &fakeStore{},
		transport:   &fakeTransport{},
		scheduler:   &fakeScheduler{},
		alerter:     &fakeAlerter{},
		locks:       locker.NewMemoryLocker(),
		clock:       &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	h.orders.SetClock(h.clock.Now)

	o, err := New(Deps{
		Orders:      h.orders,
		Interpreter: h.interpreter,
		Renderer:    renderer,
		Documents:   h.store,
		Transport:   h.transport,
		Scheduler:   h.scheduler,
		Locker:      h.locks,
		Alerter:     h.alerter,
		Catalog:     catalog.Default(),
		Now:         h.clock.Now,
	}, cfg)
	require.NoError(t, err)
	h.o = o
	return h
}
