package grove

import "sync"

// interner is a process-wide string pool. Class and property names repeat
// across every instance of a tree, so sharing one backing string per
// distinct name keeps property maps small and makes comparisons cheap.
type interner struct {
	mu      sync.RWMutex
	strings map[string]string
}

var globalInterner = &interner{strings: make(map[string]string)}

// Intern returns the canonical copy of s, inserting it on first sight.
// Safe for concurrent use.
func Intern(s string) string {
	return globalInterner.intern(s)
}

func (in *interner) intern(s string) string {
	// Fast path: already pooled (read lock).
	in.mu.RLock()
	if canon, ok := in.strings[s]; ok {
		in.mu.RUnlock()
		return canon
	}
	in.mu.RUnlock()

	// Slow path: need write lock.
	in.mu.Lock()
	defer in.mu.Unlock()

	// Double-check after acquiring write lock.
	if canon, ok := in.strings[s]; ok {
		return canon
	}
	in.strings[s] = s
	return s
}
