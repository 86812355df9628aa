package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var t0 = time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

type call struct {
	id   string
	dest string
}

type fakeDelivery struct {
	mu         sync.Mutex
	dispatched []call
	notified   []call
	probeErr   map[string]error // by destination
	dispatch   map[string]error // by record text
	entered    chan struct{}
	block      chan struct{}
}

func (d *fakeDelivery) Probe(ctx context.Context, r reminder.Record, dest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probeErr[dest]
}

func (d *fakeDelivery) Dispatch(ctx context.Context, r reminder.Record, dest string) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dispatch[r.Text]; err != nil {
		return err
	}
	d.dispatched = append(d.dispatched, call{r.ID, dest})
	return nil
}

func (d *fakeDelivery) NotifyFailure(ctx context.Context, r reminder.Record, dest string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notified = append(d.notified, call{r.ID, dest})
}

func newRec(text string, due time.Time) reminder.Record {
	return reminder.Record{
		ID: reminder.NewID(), Text: text, AuthorID: 1, ScopeID: -100,
		DestinationID: "-100", DueAt: due.Unix(), CreatedAt: t0.Add(-time.Hour),
	}
}

func setup(t *testing.T, now time.Time, recs ...reminder.Record) (*Service, storage.Store, *fakeDelivery) {
	t.Helper()
	st := storage.NewMemory()
	for _, r := range recs {
		require.NoError(t, st.Insert(context.Background(), r))
	}
	d := &fakeDelivery{probeErr: map[string]error{}, dispatch: map[string]error{}}
	svc := New(Config{}, st, d, st, logx.Nop(), WithClock(func() time.Time { return now }))
	return svc, st, d
}

func TestTickWindowIncludesCurrentMinuteOnly(t *testing.T) {
	t.Parallel()
	in := newRec("inside", t0.Add(30*time.Second))
	out := newRec("next minute", t0.Add(time.Minute))
	svc, st, d := setup(t, t0, in, out)

	rep, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute).Unix(), rep.Bound)
	assert.Equal(t, 1, rep.Due)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, in.ID, d.dispatched[0].id)

	left, err := st.ByScope(context.Background(), -100)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, out.ID, left[0].ID)
}

func TestTickRegeneratesFromDueAt(t *testing.T) {
	t.Parallel()
	r := newRec("meds", t0)
	r.Interval = "2 hours"
	svc, st, d := setup(t, t0.Add(20*time.Second), r)

	_, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, d.dispatched, 1)

	left, err := st.ByScope(context.Background(), -100)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.NotEqual(t, r.ID, left[0].ID)
	assert.Equal(t, r.DueAt+7200, left[0].DueAt)
	assert.Equal(t, "2 hours", left[0].Interval)
}

func TestTickCatchUpKeepsPhase(t *testing.T) {
	t.Parallel()
	r := newRec("daily", t0.Add(-72*time.Hour))
	r.Interval = "1 day"
	svc, st, d := setup(t, t0.Add(5*time.Minute), r)

	_, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.dispatched, 1)
	left, _ := st.ByScope(context.Background(), -100)
	require.Len(t, left, 1)
	assert.Equal(t, t0.Add(24*time.Hour).Unix(), left[0].DueAt)
}

func TestTickPermissionDeniedThenTransportAborts(t *testing.T) {
	t.Parallel()
	denied := newRec("denied", t0.Add(-3*time.Minute))
	denied.Interval = "1 day"
	broken := newRec("broken", t0.Add(-2*time.Minute))
	after := newRec("after", t0.Add(-1*time.Minute))
	svc, st, d := setup(t, t0, denied, broken, after)
	d.dispatch["denied"] = ErrPermissionDenied
	d.dispatch["broken"] = errors.New("dial tcp: i/o timeout")

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	svc.bus = bus

	rep, err := svc.Tick(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, rep.Aborted)
	assert.Equal(t, 1, rep.Denied)
	assert.Empty(t, d.dispatched)
	require.Len(t, d.notified, 1)
	assert.Equal(t, denied.ID, d.notified[0].id)

	left, err := st.ByScope(context.Background(), -100)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range left {
		ids[r.ID] = true
	}
	assert.False(t, ids[denied.ID], "denied record consumed")
	assert.True(t, ids[broken.ID], "failed record kept")
	assert.True(t, ids[after.ID], "unprocessed record kept")
	assert.Len(t, left, 3, "denied recurring record regenerated")

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Contains(t, types, EventDenied)
	assert.Contains(t, types, EventTickAborted)
}

func TestTickTargetGoneConsumesWithoutDelivery(t *testing.T) {
	t.Parallel()
	gone := newRec("gone", t0)
	gone.DestinationID = "-999"
	gone.ScopeID = -999
	gone.Interval = "1 hour"
	ok := newRec("ok", t0)
	svc, st, d := setup(t, t0, gone, ok)
	d.probeErr["-999"] = ErrTargetGone
	require.NoError(t, st.PutSettings(context.Background(), reminder.Settings{ScopeID: -999, Timezone: "UTC"}))
	require.NoError(t, svc.Apply(Config{TargetGone: TargetGonePurgeSettings}))

	rep, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Dispatched)
	assert.Empty(t, d.notified)

	left, _ := st.ByScope(context.Background(), -999)
	assert.Empty(t, left, "target-gone record is not regenerated")
	got, _ := st.Settings(context.Background(), -999)
	assert.Equal(t, reminder.DefaultSettings(-999), got)
}

func TestTickOverrideFallsBackWhenGone(t *testing.T) {
	t.Parallel()
	r := newRec("x", t0)
	svc, st, d := setup(t, t0, r)
	require.NoError(t, st.PutSettings(context.Background(), reminder.Settings{ScopeID: -100, Destination: "-555:2"}))

	d.probeErr["-555:2"] = ErrTargetGone
	_, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, "-100", d.dispatched[0].dest)

	r2 := newRec("y", t0)
	require.NoError(t, st.Insert(context.Background(), r2))
	delete(d.probeErr, "-555:2")
	_, err = svc.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, d.dispatched, 2)
	assert.Equal(t, "-555:2", d.dispatched[1].dest)
}

func TestTickDoesNotOverlap(t *testing.T) {
	t.Parallel()
	svc, _, d := setup(t, t0, newRec("slow", t0))
	d.entered = make(chan struct{}, 1)
	d.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Tick(context.Background())
		done <- err
	}()
	<-d.entered

	_, err := svc.Tick(context.Background())
	require.ErrorIs(t, err, ErrTickInProgress)
	close(d.block)
	require.NoError(t, <-done)
	assert.Len(t, d.dispatched, 1)
	assert.Equal(t, uint64(1), svc.Snapshot().SkippedTicks)
}

func TestRunTickRecoversPanic(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	svc := New(Config{}, st, nil, st, logx.Nop(), WithClock(func() time.Time { return t0 }))
	require.NoError(t, st.Insert(context.Background(), newRec("boom", t0)))

	assert.NotPanics(t, svc.runTick)
	assert.Equal(t, uint64(1), svc.Snapshot().Panics)
}

func TestStartWaitsForReady(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t, t0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	require.NoError(t, svc.Start(ctx, ready))
	select {
	case <-svc.Armed():
		t.Fatal("armed before ready")
	case <-time.After(20 * time.Millisecond):
	}
	close(ready)
	select {
	case <-svc.Armed():
	case <-time.After(time.Second):
		t.Fatal("not armed after ready")
	}
	assert.True(t, svc.Snapshot().Armed)
	svc.Stop(context.Background())
}

func TestApplyBeforeReadyRegistersOneEntry(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t, t0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	require.NoError(t, svc.Start(ctx, ready))
	require.NoError(t, svc.Apply(Config{PollSchedule: "@every 30s"}))
	close(ready)
	select {
	case <-svc.Armed():
	case <-time.After(time.Second):
		t.Fatal("not armed after ready")
	}

	svc.mu.Lock()
	entries := svc.c.Entries()
	svc.mu.Unlock()
	require.Len(t, entries, 1)
	assert.Equal(t, cron.ConstantDelaySchedule{Delay: 30 * time.Second}, entries[0].Schedule)
	svc.Stop(context.Background())
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw, want string
		bad       bool
	}{
		{raw: "0 * * * * *", want: "0 * * * * *"},
		{raw: "@every 1m", want: "@every 1m"},
		{raw: "30s", want: "@every 30s"},
		{raw: "00:05", want: "@every 5m0s"},
		{raw: "", bad: true},
		{raw: "0s", bad: true},
		{raw: "soon", bad: true},
		{raw: "61 * * * * *", bad: true},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.raw)
		if tt.bad {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) = %q, want error", tt.raw, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseSchedule(%q) = %q, %v; want %q", tt.raw, got, err, tt.want)
		}
	}
}

// rawStore hands out records as stored, without the validation a real
// driver applies on insert (rows written by an older build).
type rawStore struct {
	mu   sync.Mutex
	recs []reminder.Record
}

func (s *rawStore) DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reminder.Record
	for _, r := range s.recs {
		if r.DueAt < bound {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *rawStore) Complete(ctx context.Context, id string, next *reminder.Record) error {
	if next != nil {
		if err := next.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recs {
		if r.ID == id {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			break
		}
	}
	if next != nil {
		s.recs = append(s.recs, *next)
	}
	return nil
}

func TestTickDropsRecordThatCannotAdvance(t *testing.T) {
	t.Parallel()
	bad := newRec("overflow", t0)
	bad.Interval = "1 day, 3000000 hours"
	good := newRec("good", t0.Add(10*time.Second))
	st := &rawStore{recs: []reminder.Record{bad, good}}
	d := &fakeDelivery{probeErr: map[string]error{}, dispatch: map[string]error{}}
	svc := New(Config{}, st, d, storage.NewMemory(), logx.Nop(), WithClock(func() time.Time { return t0.Add(20 * time.Second) }))

	for i := 0; i < 3; i++ {
		rep, err := svc.Tick(context.Background())
		require.NoError(t, err)
		assert.False(t, rep.Aborted)
	}
	require.Len(t, d.dispatched, 2)
	assert.Equal(t, bad.ID, d.dispatched[0].id)
	assert.Equal(t, good.ID, d.dispatched[1].id)
	assert.Empty(t, st.recs)
}
