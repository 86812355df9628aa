package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

var noon = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func rec(text string, scope int64, due time.Time) reminder.Record {
	return reminder.Record{
		ID:            reminder.NewID(),
		Text:          text,
		AuthorID:      7,
		ScopeID:       scope,
		DestinationID: "-100",
		DueAt:         due.Unix(),
		CreatedAt:     noon.Add(-time.Hour),
	}
}

// drivers opens every backend in a fresh temp dir.
func drivers(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemory() },
		"file": func() Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.db"), CompactEvery: 3}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func() Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.sqlite")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func TestDueBeforeBoundIsExclusive(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			in := rec("inside", 1, noon.Add(30*time.Second))
			edge := rec("edge", 1, noon.Add(time.Minute))
			early := rec("early", 1, noon.Add(-time.Hour))
			for _, r := range []reminder.Record{in, edge, early} {
				require.NoError(t, st.Insert(ctx, r))
			}

			got, err := st.DueBefore(ctx, noon.Add(time.Minute).Unix())
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, early.ID, got[0].ID)
			assert.Equal(t, in.ID, got[1].ID)
		})
	}
}

func TestEqualDueAtKeepsInsertionOrder(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			var ids []string
			for _, txt := range []string{"a", "b", "c", "d"} {
				r := rec(txt, 1, noon)
				ids = append(ids, r.ID)
				require.NoError(t, st.Insert(ctx, r))
			}
			for i := 0; i < 3; i++ {
				got, err := st.ByScope(ctx, 1)
				require.NoError(t, err)
				require.Len(t, got, 4)
				for j, r := range got {
					assert.Equal(t, ids[j], r.ID)
				}
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			r := rec("x", 1, noon)
			require.NoError(t, st.Insert(ctx, r))
			require.NoError(t, st.Remove(ctx, r.ID))
			require.NoError(t, st.Remove(ctx, r.ID))
			_, err := st.Get(ctx, r.ID)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCompleteReplacesAtomically(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			r := rec("every two hours", 1, noon)
			r.Interval = "2 hours"
			require.NoError(t, st.Insert(ctx, r))

			next, err := r.Regenerate(time.UTC, noon)
			require.NoError(t, err)
			require.NoError(t, st.Complete(ctx, r.ID, &next))

			got, err := st.ByScope(ctx, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, next.ID, got[0].ID)
			assert.Equal(t, r.DueAt+7200, got[0].DueAt)
			assert.Equal(t, "2 hours", got[0].Interval)

			require.NoError(t, st.Complete(ctx, next.ID, nil))
			got, err = st.ByScope(ctx, 1)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestInsertRejectsInvalid(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			r := rec("", 1, noon)
			require.ErrorIs(t, st.Insert(context.Background(), r), reminder.ErrInvalidRecord)
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			def, err := st.Settings(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, reminder.DefaultSettings(5), def)

			want := reminder.Settings{ScopeID: 5, Timezone: "Asia/Jakarta", Destination: "-100:3", ManagerRole: "mods", UpdatedAt: noon}
			require.NoError(t, st.PutSettings(ctx, want))
			got, err := st.Settings(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, want.Timezone, got.Timezone)
			assert.Equal(t, want.Destination, got.Destination)
			assert.Equal(t, want.ManagerRole, got.ManagerRole)
			assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

			require.NoError(t, st.DeleteSettings(ctx, 5))
			got, err = st.Settings(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, reminder.DefaultSettings(5), got)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	cfg := Config{Driver: "file", Path: path, CompactEvery: 2}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	a := rec("a", 1, noon)
	b := rec("b", 1, noon)
	c := rec("c", 1, noon.Add(time.Hour))
	for _, r := range []reminder.Record{a, b, c} {
		require.NoError(t, st.Insert(ctx, r))
	}
	next := rec("a2", 1, noon.Add(2*time.Hour))
	require.NoError(t, st.Complete(ctx, a.ID, &next))
	require.NoError(t, st.PutSettings(ctx, reminder.Settings{ScopeID: 1, Timezone: "UTC"}))

	// Simulate a crash: no Close, so the journal tail is not compacted.
	fs := st.(*fileStore)
	fs.mu.Lock()
	require.NoError(t, fs.journal.Close())
	fs.journal = nil
	fs.mu.Unlock()

	st2, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	got, err := st2.ByScope(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{b.ID, c.ID, next.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestConcurrentCompleteAndPoll(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			ctx := context.Background()

			const n = 50
			for i := 0; i < n; i++ {
				require.NoError(t, st.Insert(ctx, rec("r", 1, noon)))
			}
			due, err := st.DueBefore(ctx, noon.Add(time.Minute).Unix())
			require.NoError(t, err)
			require.Len(t, due, n)

			var wg sync.WaitGroup
			for _, r := range due {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					next := rec("r", 1, noon.Add(24*time.Hour))
					assert.NoError(t, st.Complete(ctx, id, &next))
				}(r.ID)
			}
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := st.DueBefore(ctx, noon.Add(time.Minute).Unix())
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			left, err := st.DueBefore(ctx, noon.Add(time.Minute).Unix())
			require.NoError(t, err)
			assert.Empty(t, left)
			all, err := st.ByScope(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, all, n)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
}

func TestDefaultedTimezone(t *testing.T) {
	ctx := context.Background()
	d := WithDefaults(NewMemory(), "Europe/London")
	defer d.Close()

	st, err := d.Settings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", st.Timezone)

	d.SetTimezone("")
	st, err = d.Settings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "UTC", st.Timezone)

	require.NoError(t, d.PutSettings(ctx, reminder.Settings{ScopeID: 9, Timezone: "Asia/Tokyo"}))
	d.SetTimezone("Europe/London")
	st, err = d.Settings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", st.Timezone)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestFileStoreCompactKeepsTriggeringWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	cfg := Config{Driver: "file", Path: path, CompactEvery: 2}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	a := rec("a", 1, noon)
	b := rec("b", 1, noon.Add(time.Minute))
	require.NoError(t, st.Insert(ctx, a))
	require.NoError(t, st.Insert(ctx, b))

	fs := st.(*fileStore)
	fs.mu.Lock()
	require.NoError(t, fs.journal.Close())
	fs.journal = nil
	fs.mu.Unlock()

	st2, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	got, err := st2.ByScope(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[1].ID)
}
