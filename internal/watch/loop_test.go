package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"statusbot/internal/storage"
)

type fetchResult struct {
	raw any
	err error
}

type fakeSource struct {
	results []fetchResult
	cursors []int64
}

func (s *fakeSource) Fetch(_ context.Context, cursor int64) (any, error) {
	s.cursors = append(s.cursors, cursor)
	if len(s.results) == 0 {
		return map[string]any{"records": []any{}}, nil
	}
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.raw, r.err
}

type fakeNotifier struct {
	sent  []string
	fails int // fail this many upcoming deliveries
}

func (n *fakeNotifier) Deliver(_ context.Context, text string) error {
	if n.fails > 0 {
		n.fails--
		return errors.New("telegram: 502 bad gateway")
	}
	n.sent = append(n.sent, text)
	return nil
}

type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	cancel context.CancelFunc
	stopAt int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	if c.cancel != nil && len(c.slept) >= c.stopAt {
		c.cancel()
	}
	return ctx.Err()
}

type memStore struct {
	mu         sync.Mutex
	state      storage.State
	has        bool
	deliveries []storage.DeliveryEntry
}

func (m *memStore) LoadState(context.Context) (storage.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.has, nil
}

func (m *memStore) SaveState(_ context.Context, st storage.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.has = st, true
	return nil
}

func (m *memStore) AppendDelivery(_ context.Context, e storage.DeliveryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, e)
	return nil
}

func snapshot(advance int64, recs ...map[string]any) map[string]any {
	items := make([]any, 0, len(recs))
	for _, r := range recs {
		items = append(items, r)
	}
	return map[string]any{"records": items, "advance": float64(advance)}
}

func rec(name, status string) map[string]any {
	return map[string]any{"name": name, "status": status}
}

func newTestLoop(t *testing.T, src *fakeSource, n *fakeNotifier, opts ...func(*Options, *Settings)) (*Loop, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(500, 0)}
	o := Options{Source: src, Notifier: n, Clock: clk}
	s := Settings{Verdicts: testVerdicts}
	for _, fn := range opts {
		fn(&o, &s)
	}
	l, err := New(o, s)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return l, clk
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{Notifier: &fakeNotifier{}}, Settings{Verdicts: testVerdicts}); err == nil {
		t.Fatal("expected error without source")
	}
	if _, err := New(Options{Source: &fakeSource{}}, Settings{Verdicts: testVerdicts}); err == nil {
		t.Fatal("expected error without notifier")
	}
	if _, err := New(Options{Source: &fakeSource{}, Notifier: &fakeNotifier{}}, Settings{}); err == nil {
		t.Fatal("expected error without verdicts")
	}
}

func TestCursorStartsAtNow(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(t, &fakeSource{}, &fakeNotifier{})
	if l.Cursor() != 500 {
		t.Fatalf("cursor = %d, want 500", l.Cursor())
	}
}

func TestScenarioEmptySnapshotAdvancesSilently(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{raw: snapshot(1000)}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Phase != PhaseIdle || out.Failed() || out.Delivered {
		t.Fatalf("outcome = %+v, want quiet idle", out)
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent = %q, want nothing", n.sent)
	}
	if l.Cursor() != 1000 || out.Cursor != 1000 {
		t.Fatalf("cursor = %d, want 1000", l.Cursor())
	}
	if src.cursors[0] != 500 {
		t.Fatalf("fetched with cursor %d, want 500", src.cursors[0])
	}
}

func TestScenarioStatusChangeDelivered(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{raw: snapshot(2000, rec("task1", "approved"))}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	want := `Status of "task1" changed. ` + testVerdicts["approved"]
	if !out.Delivered || out.Text != want {
		t.Fatalf("outcome = %+v, want delivered %q", out, want)
	}
	if len(n.sent) != 1 || n.sent[0] != want {
		t.Fatalf("sent = %q", n.sent)
	}
	if l.LastMessage() != want || l.Cursor() != 2000 {
		t.Fatalf("state = (%d, %q)", l.Cursor(), l.LastMessage())
	}
}

func TestScenarioIdenticalSnapshotSentOnce(t *testing.T) {
	t.Parallel()
	snap := snapshot(2000, rec("task1", "approved"))
	src := &fakeSource{results: []fetchResult{{raw: snap}, {raw: snap}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	first := l.Tick(context.Background())
	second := l.Tick(context.Background())
	if !first.Delivered || second.Delivered || !second.Suppressed {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(n.sent))
	}
}

func TestScenarioUnknownStatusReportedOnce(t *testing.T) {
	t.Parallel()
	snap := snapshot(3000, rec("task2", "archived"))
	src := &fakeSource{results: []fetchResult{{raw: snap}, {raw: snap}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	first := l.Tick(context.Background())
	if first.Kind() != UnknownStatus || first.Phase != PhaseInterpret {
		t.Fatalf("outcome = %+v, want UnknownStatus in interpret", first)
	}
	second := l.Tick(context.Background())
	if !second.Suppressed {
		t.Fatalf("second outcome = %+v, want suppressed", second)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %q, want one diagnostic", n.sent)
	}
	if !strings.HasPrefix(n.sent[0], "Program failure: ") || !strings.Contains(n.sent[0], "archived") {
		t.Fatalf("diagnostic = %q", n.sent[0])
	}
	if strings.HasPrefix(n.sent[0], "Status of") {
		t.Fatal("unknown status must not produce a status notification")
	}
	if l.Cursor() != 3000 {
		t.Fatalf("cursor = %d, want 3000 (validated snapshot advances)", l.Cursor())
	}
}

func TestScenarioRepeatedTransportErrorReportedOnce(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	src := &fakeSource{results: []fetchResult{{err: boom}, {err: boom}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	first := l.Tick(context.Background())
	second := l.Tick(context.Background())
	if first.Kind() != SourceUnreachable || !first.Delivered {
		t.Fatalf("first = %+v", first)
	}
	if second.Kind() != SourceUnreachable || !second.Suppressed || second.Delivered {
		t.Fatalf("second = %+v", second)
	}
	if len(n.sent) != 1 || !strings.Contains(n.sent[0], "connection refused") {
		t.Fatalf("sent = %q", n.sent)
	}
	if l.Cursor() != 500 {
		t.Fatalf("cursor moved on transport error: %d", l.Cursor())
	}
}

func TestSourceMalformedBodyKeepsKind(t *testing.T) {
	t.Parallel()
	bad := NewError(MalformedResponse, errors.New("invalid character '<'"), "invalid JSON from https://example.test")
	src := &fakeSource{results: []fetchResult{{err: bad}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Phase != PhaseFetch || out.Kind() != MalformedResponse || !out.Delivered {
		t.Fatalf("out = %+v", out)
	}
	if len(n.sent) != 1 || !strings.HasPrefix(n.sent[0], "Program failure: malformed response") {
		t.Fatalf("sent = %q", n.sent)
	}
	if l.Cursor() != 500 {
		t.Fatalf("cursor moved on malformed body: %d", l.Cursor())
	}
}

func TestIncompleteRecordNeverSendsStatus(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{raw: snapshot(900, map[string]any{"status": "approved"})}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Kind() != IncompleteRecord {
		t.Fatalf("kind = %v, want IncompleteRecord", out.Kind())
	}
	for _, s := range n.sent {
		if strings.HasPrefix(s, "Status of") {
			t.Fatalf("status notification sent for incomplete record: %q", s)
		}
	}
	if !strings.Contains(out.Text, `"name"`) {
		t.Fatalf("diagnostic %q does not name the missing field", out.Text)
	}
}

func TestMalformedResponseKeepsCursor(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{raw: map[string]any{"advance": float64(9999)}}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Kind() != MalformedResponse || out.Phase != PhaseValidate {
		t.Fatalf("outcome = %+v", out)
	}
	if l.Cursor() != 500 {
		t.Fatalf("cursor = %d, want unchanged 500", l.Cursor())
	}
}

func TestOnlyNewestRecordIsInterpreted(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{raw: snapshot(2000, rec("new", "reviewing"), rec("old", "archived"))}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if !out.Delivered || !strings.Contains(out.Text, `"new"`) {
		t.Fatalf("outcome = %+v", out)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %q", n.sent)
	}
}

func TestCursorNeverDecreases(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{
		{raw: snapshot(2000)},
		{raw: snapshot(1500)},
		{raw: map[string]any{"records": []any{}}},
		{err: errors.New("timeout")},
		{raw: snapshot(2500, rec("task1", "rejected"))},
		{raw: snapshot(100, rec("task1", "approved"))},
	}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	prev := l.Cursor()
	for i := 0; i < 6; i++ {
		l.Tick(context.Background())
		if l.Cursor() < prev {
			t.Fatalf("iteration %d: cursor went back from %d to %d", i, prev, l.Cursor())
		}
		prev = l.Cursor()
	}
	if prev != 2500 {
		t.Fatalf("final cursor = %d, want 2500", prev)
	}
}

func TestDeliveryFailureIsContained(t *testing.T) {
	t.Parallel()
	snap := snapshot(2000, rec("task1", "approved"))
	src := &fakeSource{results: []fetchResult{{raw: snap}, {raw: snap}}}
	n := &fakeNotifier{fails: 1}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Delivered || out.Kind() != DeliveryError || !IsKind(out.DeliveryErr, DeliveryError) {
		t.Fatalf("outcome = %+v", out)
	}
	if l.LastMessage() != "" {
		t.Fatalf("LastMessage updated without delivery: %q", l.LastMessage())
	}
	if l.Cursor() != 2000 {
		t.Fatalf("cursor = %d, want 2000 (advance regardless of delivery)", l.Cursor())
	}

	// The same status is still different from LastMessage, so it is retried.
	out = l.Tick(context.Background())
	if !out.Delivered || len(n.sent) != 1 {
		t.Fatalf("retry outcome = %+v sent=%q", out, n.sent)
	}
}

func TestHoldCursorOnDeliveryFailure(t *testing.T) {
	t.Parallel()
	snap := snapshot(2000, rec("task1", "approved"))
	src := &fakeSource{results: []fetchResult{{raw: snap}, {raw: snap}}}
	n := &fakeNotifier{fails: 1}
	l, _ := newTestLoop(t, src, n, func(_ *Options, s *Settings) { s.HoldCursorOnDeliveryFailure = true })

	l.Tick(context.Background())
	if l.Cursor() != 500 {
		t.Fatalf("cursor = %d, want held at 500", l.Cursor())
	}
	out := l.Tick(context.Background())
	if !out.Delivered || l.Cursor() != 2000 {
		t.Fatalf("outcome = %+v cursor = %d", out, l.Cursor())
	}
	if src.cursors[1] != 500 {
		t.Fatalf("second fetch used cursor %d, want 500", src.cursors[1])
	}
}

func TestDiagnosticDeliveryFailureIsContained(t *testing.T) {
	t.Parallel()
	boom := errors.New("no route to host")
	src := &fakeSource{results: []fetchResult{{err: boom}, {err: boom}}}
	n := &fakeNotifier{fails: 1}
	l, _ := newTestLoop(t, src, n)

	out := l.Tick(context.Background())
	if out.Kind() != SourceUnreachable || out.DeliveryErr == nil || out.Delivered {
		t.Fatalf("outcome = %+v", out)
	}
	// Not delivered, so not remembered: the next identical failure is reported.
	out = l.Tick(context.Background())
	if !out.Delivered || len(n.sent) != 1 {
		t.Fatalf("outcome = %+v sent = %q", out, n.sent)
	}
}

func TestApplySwapsVerdicts(t *testing.T) {
	t.Parallel()
	snap := snapshot(2000, rec("task2", "archived"))
	src := &fakeSource{results: []fetchResult{{raw: snap}, {raw: snap}}}
	n := &fakeNotifier{}
	l, _ := newTestLoop(t, src, n)

	if out := l.Tick(context.Background()); out.Kind() != UnknownStatus {
		t.Fatalf("outcome = %+v", out)
	}
	if err := l.Apply(Settings{Verdicts: map[string]string{"archived": "Archived."}}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	out := l.Tick(context.Background())
	if !out.Delivered || out.Text != `Status of "task2" changed. Archived.` {
		t.Fatalf("outcome = %+v", out)
	}
	if err := l.Apply(Settings{}); err == nil {
		t.Fatal("Apply must reject empty verdicts")
	}
}

type everyCadence time.Duration

func (c everyCadence) Next(time.Time) time.Duration { return time.Duration(c) }

func TestRunSleepsBetweenIterationsAndStops(t *testing.T) {
	t.Parallel()
	src := &fakeSource{results: []fetchResult{{err: errors.New("down")}, {raw: snapshot(2000)}, {raw: snapshot(2100)}}}
	n := &fakeNotifier{}
	var ticks []Outcome
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, clk := newTestLoop(t, src, n, func(o *Options, s *Settings) {
		o.OnTick = func(out Outcome) { ticks = append(ticks, out) }
		s.Cadence = everyCadence(10 * time.Minute)
	})
	clk.cancel = cancel
	clk.stopAt = 3

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("ran %d iterations, want 3", len(ticks))
	}
	for i, d := range clk.slept {
		if d != 10*time.Minute {
			t.Fatalf("sleep[%d] = %v, want 10m (same cadence on every path)", i, d)
		}
	}
	if l.Cursor() != 2100 {
		t.Fatalf("cursor = %d, want 2100", l.Cursor())
	}
}

func TestRunDefaultsToTenMinutes(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, clk := newTestLoop(t, &fakeSource{}, &fakeNotifier{})
	clk.cancel = cancel
	clk.stopAt = 1
	_ = l.Run(ctx)
	if len(clk.slept) != 1 || clk.slept[0] != DefaultInterval {
		t.Fatalf("slept = %v, want [%v]", clk.slept, DefaultInterval)
	}
}

func TestStorePersistsAndRestores(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	src := &fakeSource{results: []fetchResult{{raw: snapshot(2000, rec("task1", "approved"))}}}
	l, _ := newTestLoop(t, src, &fakeNotifier{}, func(o *Options, _ *Settings) { o.Store = store })

	out := l.Tick(context.Background())
	if !out.Delivered {
		t.Fatalf("outcome = %+v", out)
	}
	if !store.has || store.state.Cursor != 2000 || store.state.LastMessage != out.Text {
		t.Fatalf("stored state = %+v", store.state)
	}
	if len(store.deliveries) != 1 || !store.deliveries[0].OK || store.deliveries[0].Kind != "status" {
		t.Fatalf("deliveries = %+v", store.deliveries)
	}

	// A restarted loop picks up where the previous one stopped and keeps deduplicating.
	src2 := &fakeSource{results: []fetchResult{{raw: snapshot(2000, rec("task1", "approved"))}}}
	n2 := &fakeNotifier{}
	l2, _ := newTestLoop(t, src2, n2, func(o *Options, _ *Settings) { o.Store = store })
	if err := l2.Restore(context.Background()); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if l2.Cursor() != 2000 {
		t.Fatalf("restored cursor = %d", l2.Cursor())
	}
	if out := l2.Tick(context.Background()); !out.Suppressed || len(n2.sent) != 0 {
		t.Fatalf("restored loop resent: %+v", out)
	}
}
