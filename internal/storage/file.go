package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// Every mutation is one journal line, so Complete replays atomically. The
// journal is compacted into the snapshot every CompactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	ix           *index

	writes       int
	compactEvery int
}

type journalOp struct {
	Op       string             `json:"op"`
	ID       string             `json:"id,omitempty"`
	Seq      uint64             `json:"seq,omitempty"`
	Rec      *reminder.Record   `json:"rec,omitempty"`
	Scope    int64              `json:"scope,omitempty"`
	Settings *reminder.Settings `json:"settings,omitempty"`
}

const (
	opPut            = "put"
	opDel            = "del"
	opComplete       = "complete"
	opSettings       = "settings"
	opDeleteSettings = "del_settings"
)

type snapshotEntry struct {
	Seq uint64          `json:"seq"`
	Rec reminder.Record `json:"rec"`
}

type snapshot struct {
	Seq      uint64              `json:"seq"`
	Records  []snapshotEntry     `json:"records"`
	Settings []reminder.Settings `json:"settings"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	ix := newIndex()
	if err := loadSnapshot(snapPath, ix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	n, err := replayJournal(journalPath, ix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 500
	}
	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		ix:           ix,
		writes:       n,
		compactEvery: every,
	}
	log.Info("file store opened", logx.String("path", prefix), logx.Int("records", len(ix.recs)), logx.Int("replayed", n))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("compact on close failed", logx.Any("err", err))
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// appendLocked writes op to the journal, then applies it in memory. A compact
// only runs after apply so the snapshot includes op.
func (s *fileStore) appendLocked(op journalOp, apply func()) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return err
	}
	apply()
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) nextSeq(id string) uint64 {
	if e, ok := s.ix.recs[id]; ok {
		return e.seq
	}
	return s.ix.seq + 1
}

func (s *fileStore) Insert(ctx context.Context, r reminder.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalOp{Op: opPut, Seq: s.nextSeq(r.ID), Rec: &r}, func() {
		s.ix.put(r)
	})
}

func (s *fileStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.ix.recs[id]; !ok {
		return nil
	}
	return s.appendLocked(journalOp{Op: opDel, ID: id}, func() {
		s.ix.del(id)
	})
}

func (s *fileStore) Complete(ctx context.Context, id string, next *reminder.Record) error {
	if next != nil {
		if err := next.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op := journalOp{Op: opComplete, ID: id, Rec: next}
	if next != nil {
		op.Seq = s.nextSeq(next.ID)
	}
	return s.appendLocked(op, func() {
		s.ix.del(id)
		if next != nil {
			s.ix.put(*next)
		}
	})
}

func (s *fileStore) DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.ix.filter(func(r reminder.Record) bool { return r.DueAt < bound }), nil
}

func (s *fileStore) ByScope(ctx context.Context, scope int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.ix.filter(func(r reminder.Record) bool { return r.ScopeID == scope }), nil
}

func (s *fileStore) Get(ctx context.Context, id string) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ix.recs[id]
	if !ok {
		return reminder.Record{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return e.rec, nil
}

func (s *fileStore) Settings(ctx context.Context, scope int64) (reminder.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.getSettings(scope), nil
}

func (s *fileStore) PutSettings(ctx context.Context, st reminder.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalOp{Op: opSettings, Settings: &st}, func() {
		s.ix.settings[st.ScopeID] = st
	})
}

func (s *fileStore) DeleteSettings(ctx context.Context, scope int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ix.settings[scope]; !ok {
		return nil
	}
	return s.appendLocked(journalOp{Op: opDeleteSettings, Scope: scope}, func() {
		delete(s.ix.settings, scope)
	})
}

func (s *fileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{Seq: s.ix.seq}
	for _, e := range s.ix.recs {
		snap.Records = append(snap.Records, snapshotEntry{Seq: e.seq, Rec: e.rec})
	}
	for _, st := range s.ix.settings {
		snap.Settings = append(snap.Settings, st)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, ix *index) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	ix.seq = snap.Seq
	for _, e := range snap.Records {
		ix.recs[e.Rec.ID] = entry{seq: e.Seq, rec: e.Rec}
	}
	for _, st := range snap.Settings {
		ix.settings[st.ScopeID] = st
	}
	return nil
}

// replayJournal applies journal lines on top of the snapshot. A torn last line
// (crash mid-write) is skipped.
func replayJournal(path string, ix *index) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			continue
		}
		n++
		switch op.Op {
		case opPut:
			if op.Rec != nil {
				applyPut(ix, op.Seq, *op.Rec)
			}
		case opDel:
			ix.del(op.ID)
		case opComplete:
			ix.del(op.ID)
			if op.Rec != nil {
				applyPut(ix, op.Seq, *op.Rec)
			}
		case opSettings:
			if op.Settings != nil {
				ix.settings[op.Settings.ScopeID] = *op.Settings
			}
		case opDeleteSettings:
			delete(ix.settings, op.Scope)
		}
	}
	return n, sc.Err()
}

func applyPut(ix *index, seq uint64, r reminder.Record) {
	if seq == 0 {
		ix.put(r)
		return
	}
	ix.recs[r.ID] = entry{seq: seq, rec: r}
	if seq > ix.seq {
		ix.seq = seq
	}
}
