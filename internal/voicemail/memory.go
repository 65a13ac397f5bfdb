package voicemail

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	snap      Snapshot
	expiresAt time.Time
	pending   bool
}

type memMark struct {
	key       string
	at        time.Time
	expiresAt time.Time
}

// MemoryStore is a single-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]*memEntry
	byCaller  map[string]string
	latest    string
	messages  map[string]memMark
	unmatched map[string][]memMark // ordered by at
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:       ttl,
		now:       time.Now,
		entries:   map[string]*memEntry{},
		byCaller:  map[string]string{},
		messages:  map[string]memMark{},
		unmatched: map[string][]memMark{},
	}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	if prev, ok := s.entries[snap.Token]; ok {
		snap.Resolved = snap.Resolved || prev.snap.Resolved
	}
	s.entries[snap.Token] = &memEntry{
		snap:      snap,
		expiresAt: s.now().Add(s.ttl),
		pending:   !snap.Resolved,
	}
	s.latest = snap.Token
	if snap.CallerNumber != "" {
		s.byCaller[snap.CallerNumber] = snap.Token
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(token)
	if !ok {
		return Snapshot{}, false, nil
	}
	return e.snap, true, nil
}

func (s *MemoryStore) Latest(_ context.Context) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(s.latest)
	if !ok {
		return Snapshot{}, false, nil
	}
	return e.snap, true, nil
}

func (s *MemoryStore) FindByCaller(_ context.Context, number string) (Snapshot, bool, error) {
	if number == "" {
		return Snapshot{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(s.byCaller[number])
	if !ok || e.snap.CallerNumber != number {
		return Snapshot{}, false, nil
	}
	return e.snap, true, nil
}

func (s *MemoryStore) UpdateRecordingURL(_ context.Context, token, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(token)
	if !ok {
		return false, nil
	}
	e.snap.RecordingURL = url
	return true, nil
}

func (s *MemoryStore) UpdatePressedKey(_ context.Context, token, digit string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(token)
	if !ok {
		return false, nil
	}
	e.snap.PressedKey = digit
	return true, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.liveLocked(token); ok {
		e.snap.Resolved = true
		e.pending = false
	}
	return nil
}

func (s *MemoryStore) TakeExpired(_ context.Context, cutoff time.Time) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, e := range s.entries {
		if e.pending && !e.snap.CreatedAt.After(cutoff) {
			e.pending = false
			out = append(out, e.snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RememberMessage(_ context.Context, messageID, key string) error {
	if messageID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	now := s.now()
	s.messages[messageID] = memMark{key: key, at: now, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) MessageKey(_ context.Context, messageID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || !s.now().Before(m.expiresAt) {
		return "", false, nil
	}
	return m.key, true, nil
}

func (s *MemoryStore) AddUnmatched(_ context.Context, caller, key string, at time.Time) error {
	if caller == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	marks := s.unmatched[caller]
	for _, m := range marks {
		if m.key == key {
			return nil
		}
	}
	marks = append(marks, memMark{key: key, at: at, expiresAt: s.now().Add(s.ttl)})
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].at.Before(marks[j].at) })
	s.unmatched[caller] = marks
	return nil
}

func (s *MemoryStore) TakeUnmatched(_ context.Context, caller string, since time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	marks := s.unmatched[caller]
	for i, m := range marks {
		if m.at.Before(since) || !now.Before(m.expiresAt) {
			continue
		}
		s.unmatched[caller] = append(marks[:i:i], marks[i+1:]...)
		return m.key, true, nil
	}
	return "", false, nil
}

// Len reports how many snapshots are stored, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) liveLocked(token string) (*memEntry, bool) {
	if token == "" {
		return nil, false
	}
	e, ok := s.entries[token]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false
	}
	return e, true
}

// evictLocked drops expired snapshots, the indexes pointing at them and
// expired mail marks.
// Pending snapshots stay until TakeExpired hands them out.
func (s *MemoryStore) evictLocked() {
	now := s.now()
	for token, e := range s.entries {
		if now.Before(e.expiresAt) || e.pending {
			continue
		}
		delete(s.entries, token)
		if s.byCaller[e.snap.CallerNumber] == token {
			delete(s.byCaller, e.snap.CallerNumber)
		}
		if s.latest == token {
			s.latest = ""
		}
	}
	for id, m := range s.messages {
		if !now.Before(m.expiresAt) {
			delete(s.messages, id)
		}
	}
	for caller, marks := range s.unmatched {
		live := marks[:0]
		for _, m := range marks {
			if now.Before(m.expiresAt) {
				live = append(live, m)
			}
		}
		if len(live) == 0 {
			delete(s.unmatched, caller)
			continue
		}
		s.unmatched[caller] = live
	}
}
