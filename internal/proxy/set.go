package proxy

// Set is a collection of proxies deduplicated by (host, port). The zero
// value is not usable; create one with NewSet. Set is not goroutine safe:
// all mutation is expected to happen from a single owning goroutine.
type Set struct {
	byKey map[Key]Proxy
	order []Key
}

func NewSet() *Set {
	return &Set{byKey: make(map[Key]Proxy)}
}

// Add inserts p if no proxy with the same (host, port) is present.
// Returns true when the proxy was added.
func (s *Set) Add(p Proxy) bool {
	k := p.Key()
	if _, exists := s.byKey[k]; exists {
		return false
	}
	s.byKey[k] = p
	s.order = append(s.order, k)
	return true
}

// Update replaces the stored proxy with the same identity, keeping insertion
// order. Returns false when the proxy is not in the set.
func (s *Set) Update(p Proxy) bool {
	k := p.Key()
	if _, exists := s.byKey[k]; !exists {
		return false
	}
	s.byKey[k] = p
	return true
}

func (s *Set) Contains(k Key) bool {
	_, exists := s.byKey[k]
	return exists
}

func (s *Set) Get(k Key) (Proxy, bool) {
	p, exists := s.byKey[k]
	return p, exists
}

// Remove deletes the proxy with the given identity.
func (s *Set) Remove(k Key) bool {
	if _, exists := s.byKey[k]; !exists {
		return false
	}
	delete(s.byKey, k)
	for i, existing := range s.order {
		if existing == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set) Len() int {
	return len(s.byKey)
}

// All returns the proxies in insertion order.
func (s *Set) All() []Proxy {
	out := make([]Proxy, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// Clear removes every proxy from the set.
func (s *Set) Clear() {
	s.byKey = make(map[Key]Proxy)
	s.order = s.order[:0]
}
