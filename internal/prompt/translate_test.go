package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = Origin{AuthorID: 11, AuthorName: "ana", ScopeID: -100, DestinationID: "-100:4"}

func finish(t *testing.T, m *Machine, inputs ...func(*Machine) error) {
	t.Helper()
	for _, in := range inputs {
		require.NoError(t, in(m))
	}
	require.NoError(t, m.Choose(ChoiceConfirm))
}

func choose(v string) func(*Machine) error { return func(m *Machine) error { return m.Choose(v) } }
func submit(v string) func(*Machine) error { return func(m *Machine) error { return m.Submit(v) } }

func TestBuildRecordOnPath(t *testing.T) {
	t.Parallel()
	m := newTestMachine()
	finish(t, m, choose("on"), submit("20/10/2025 at 08:15"), choose("never"))

	r, err := BuildRecord(m, origin, clock)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 20, 8, 15, 0, 0, time.UTC).Unix(), r.DueAt)
	assert.Empty(t, r.Interval)
	assert.Equal(t, "stand up", r.Text)
	assert.Equal(t, int64(11), r.AuthorID)
	assert.Equal(t, "-100:4", r.DestinationID)
	assert.NotEmpty(t, r.ID)
}

func TestBuildRecordInPathCountsFromNow(t *testing.T) {
	t.Parallel()
	m := newTestMachine()
	finish(t, m, choose("in"), submit("1 hour 30 minutes"), choose("every"), submit("week"))

	confirmedAt := clock.Add(40 * time.Second)
	r, err := BuildRecord(m, origin, confirmedAt)
	require.NoError(t, err)
	assert.Equal(t, confirmedAt.Add(90*time.Minute).Unix(), r.DueAt)
	assert.Equal(t, "1 week", r.Interval)
}

func TestBuildRecordUsesTimezone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	m := NewMachine("x", Options{Location: loc, Now: func() time.Time { return clock }})
	finish(t, m, choose("on"), submit("20/10/2025 at 08:15"), choose("never"))
	r, err := BuildRecord(m, origin, clock)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 20, 1, 15, 0, 0, time.UTC).Unix(), r.DueAt)
}

func TestBuildRecordThenRegenerateAddsOneDay(t *testing.T) {
	t.Parallel()
	m := newTestMachine()
	finish(t, m, choose("on"), submit("tomorrow at 07:00"), choose("every"), submit("1 day"))
	r, err := BuildRecord(m, origin, clock)
	require.NoError(t, err)

	next, err := r.Regenerate(m.Location(), clock)
	require.NoError(t, err)
	assert.Equal(t, r.DueAt+86400, next.DueAt)
	assert.Equal(t, "1 day", next.Interval)
}

func TestBuildRecordRequiresFinished(t *testing.T) {
	t.Parallel()
	m := newTestMachine()
	_ = m.Choose("in")
	_, err := BuildRecord(m, origin, clock)
	require.ErrorIs(t, err, ErrUnexpectedInput)
}
