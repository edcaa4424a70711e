package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// nodeStore holds this member's share of every named collection, plus the
// named locks it owns. All methods are safe for concurrent use; the RPC
// server and the in-process fast path both operate on the same instance.
type nodeStore struct {
	mu    sync.RWMutex
	maps  map[string]map[string]json.RawMessage
	mmaps map[string]map[string]map[int]struct{}

	lockMu sync.Mutex
	locks  map[string]*namedLock
}

// namedLock is a semaphore-backed mutex with holder verification: release
// requires the token the holder acquired with, so a lost client cannot free
// a lock it does not hold.
type namedLock struct {
	sem   chan struct{}
	mu    sync.Mutex
	token string
}

func newNodeStore() *nodeStore {
	return &nodeStore{
		maps:  map[string]map[string]json.RawMessage{},
		mmaps: map[string]map[string]map[int]struct{}{},
		locks: map[string]*namedLock{},
	}
}

func (s *nodeStore) mapGet(name, key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.maps[name][key]
	return v, ok
}

func (s *nodeStore) mapGetAll(name string, keys []string) map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]json.RawMessage{}
	m := s.maps[name]
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (s *nodeStore) mapPut(name, key string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[name]
	if !ok {
		m = map[string]json.RawMessage{}
		s.maps[name] = m
	}
	m[key] = value
}

func (s *nodeStore) mapContains(name, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.maps[name][key]
	return ok
}

// mapSize counts entries whose key satisfies owned. Backups hold copies of
// foreign partitions, so cluster-wide aggregation must count each entry on
// its primary only.
func (s *nodeStore) mapSize(name string, owned func(string) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.maps[name] {
		if owned(k) {
			n++
		}
	}
	return n
}

func (s *nodeStore) mapValues(name string, owned func(string) bool, limit int) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []json.RawMessage
	for k, v := range s.maps[name] {
		if !owned(k) {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *nodeStore) mapClear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.maps, name)
}

func (s *nodeStore) mmGet(name, key string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.mmaps[name][key]
	out := make([]int, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

func (s *nodeStore) mmPut(name, key string, member int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.mmaps[name]
	if !ok {
		mm = map[string]map[int]struct{}{}
		s.mmaps[name] = mm
	}
	set, ok := mm[key]
	if !ok {
		set = map[int]struct{}{}
		mm[key] = set
	}
	set[member] = struct{}{}
}

func (s *nodeStore) mmContains(name, key string, member int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mmaps[name][key][member]
	return ok
}

func (s *nodeStore) mmKeys(name string, owned func(string) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.mmaps[name] {
		if owned(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *nodeStore) mmClear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mmaps, name)
}

func (s *nodeStore) lock(name string) *namedLock {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &namedLock{sem: make(chan struct{}, 1)}
		s.locks[name] = l
	}
	return l
}

// acquireLock blocks until the named lock is held or ctx is done.
func (s *nodeStore) acquireLock(ctx context.Context, name, token string) error {
	l := s.lock(name)
	select {
	case l.sem <- struct{}{}:
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *nodeStore) releaseLock(name, token string) error {
	l := s.lock(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != token {
		return fmt.Errorf("lock %q is not held by this token", name)
	}
	l.token = ""
	<-l.sem
	return nil
}
