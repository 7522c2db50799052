package login

import (
	"sync"
	"time"
)

type Kind int

const (
	KindUser Kind = iota
	KindJob
)

func (k Kind) String() string {
	if k == KindJob {
		return "job"
	}
	return "user"
}

// Store keeps the user and job logins of one daemon and the login map derived
// from them. Authentication only reads the login map. Every mutation that
// changes records for a name also replaces that name's map entry under the
// same lock, so readers see either the old or the new list, never a mix.
type Store struct {
	mu        sync.RWMutex
	users     []*Login
	jobs      []*Login
	loginMap  map[string][]*Login
	timeStamp time.Time
}

func NewStore() *Store {
	return &Store{loginMap: map[string][]*Login{}}
}

func (s *Store) recordsLocked(kind Kind) *[]*Login {
	if kind == KindJob {
		return &s.jobs
	}
	return &s.users
}

// AddRecord appends l without touching the login map. Callers rebuild the
// map for l.Username afterwards.
func (s *Store) AddRecord(kind Kind, l *Login) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recordsLocked(kind)
	*recs = append(*recs, l)
}

// RebuildLoginMap recomputes the login map entries of the given user and job
// names from the current records. Each name is replaced on its own.
func (s *Store) RebuildLoginMap(users, jobs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range users {
		s.rebuildLocked(KindUser, name)
	}
	for _, name := range jobs {
		s.rebuildLocked(KindJob, name)
	}
}

func (s *Store) rebuildLocked(kind Kind, name string) {
	var matches []*Login
	for _, l := range *s.recordsLocked(kind) {
		if l.Username == name {
			matches = append(matches, l)
		}
	}
	if len(matches) == 0 {
		delete(s.loginMap, name)
		return
	}
	s.loginMap[name] = matches
}

// Lookup returns the logins currently valid for username, nil if none. The
// returned slice is shared and must not be modified.
func (s *Store) Lookup(username string) []*Login {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginMap[username]
}

// ReplaceMethod swaps all records of kind that belong to one of names and use
// method for fresh, stamping fresh with mtime. It refuses, and returns false,
// when the store already holds records for that method stamped after mtime,
// so a slow refresh of an old file never overwrites a newer one.
func (s *Store) ReplaceMethod(kind Kind, names []string, method Method, fresh []*Login, mtime time.Time) bool {
	match := nameSet(names)
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recordsLocked(kind)
	for _, l := range *recs {
		if match[l.Username] && l.HasMethod(method) && l.LastUpdate().After(mtime) {
			return false
		}
	}
	kept := make([]*Login, 0, len(*recs)+len(fresh))
	for _, l := range *recs {
		if match[l.Username] && l.HasMethod(method) {
			continue
		}
		kept = append(kept, l)
	}
	for _, l := range fresh {
		l.lastUpdate.Store(mtime.UnixNano())
		kept = append(kept, l)
	}
	*recs = kept
	for name := range match {
		s.rebuildLocked(kind, name)
	}
	return true
}

// RemoveUsernames drops every record and map entry of kind for names and
// returns the names that actually had records.
func (s *Store) RemoveUsernames(kind Kind, names []string) []string {
	match := nameSet(names)
	return s.Prune(kind, func(l *Login) bool { return !match[l.Username] })
}

// Prune drops the records of kind for which keep returns false and returns
// the affected names in first-seen order.
func (s *Store) Prune(kind Kind, keep func(*Login) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recordsLocked(kind)
	var removed []string
	seen := map[string]bool{}
	kept := make([]*Login, 0, len(*recs))
	for _, l := range *recs {
		if keep(l) {
			kept = append(kept, l)
			continue
		}
		if !seen[l.Username] {
			seen[l.Username] = true
			removed = append(removed, l.Username)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	*recs = kept
	for _, name := range removed {
		s.rebuildLocked(kind, name)
	}
	return removed
}

// Records returns a copy of the records of kind for username.
func (s *Store) Records(kind Kind, username string) []*Login {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Login
	for _, l := range *s.recordsLocked(kind) {
		if l.Username == username {
			out = append(out, l)
		}
	}
	return out
}

// MethodUpdated returns the newest LastUpdate of the username's records using
// method and whether any exist.
func (s *Store) MethodUpdated(kind Kind, username string, method Method) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest time.Time
	found := false
	for _, l := range *s.recordsLocked(kind) {
		if l.Username != username || !l.HasMethod(method) {
			continue
		}
		if lu := l.LastUpdate(); !found || lu.After(newest) {
			newest = lu
		}
		found = true
	}
	return newest, found
}

// Usernames returns the distinct names with records of kind.
func (s *Store) Usernames(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	seen := map[string]bool{}
	for _, l := range *s.recordsLocked(kind) {
		if !seen[l.Username] {
			seen[l.Username] = true
			out = append(out, l.Username)
		}
	}
	return out
}

func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(*s.recordsLocked(kind))
}

// TimeStamp is the start time of the last completed full sweep.
func (s *Store) TimeStamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeStamp
}

// AdvanceTimeStamp moves the sweep time stamp forward, never backward.
func (s *Store) AdvanceTimeStamp(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.After(s.timeStamp) {
		return false
	}
	s.timeStamp = t
	return true
}

func nameSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
