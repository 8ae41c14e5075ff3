package repo

// HeldLocks reports how many per-project locks the store is tracking.
func (s *Store) HeldLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
