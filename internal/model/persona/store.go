package persona

import "strings"

// Store resolves persona keys for the session store and the HTTP layer.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps the persona table in declaration order with an index by key.
// Keys are matched case-insensitively; later duplicates are ignored.
type MemoryStore struct {
	order []string
	byID  map[string]Persona
}

// NewMemoryStore indexes the given personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]Persona, len(items))}
	for _, p := range items {
		key := normalizeKey(p.ID)
		if key == "" {
			continue
		}
		if _, dup := s.byID[key]; dup {
			continue
		}
		s.order = append(s.order, key)
		s.byID[key] = p
	}
	return s
}

// List returns the personas in the order they were supplied.
func (s *MemoryStore) List() []Persona {
	out := make([]Persona, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byID[key])
	}
	return out
}

func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	p, ok := s.byID[normalizeKey(id)]
	return p, ok
}

func normalizeKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
