package compare

import "sync"

// activeSet tracks which comparison ids currently have a running goroutine,
// enforcing at-most-one active run per id.
type activeSet struct {
	mu  sync.Mutex
	ids map[string]bool
	wg  sync.WaitGroup
}

func newActiveSet() *activeSet {
	return &activeSet{ids: make(map[string]bool)}
}

// add claims the id. Returns false if a run is already active for it.
func (s *activeSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		return false
	}
	s.ids[id] = true
	s.wg.Add(1)
	return true
}

// remove releases the id.
func (s *activeSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		delete(s.ids, id)
		s.wg.Done()
	}
}

// has reports whether the id is claimed.
func (s *activeSet) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

// wait blocks until all claimed ids are released.
func (s *activeSet) wait() {
	s.wg.Wait()
}
