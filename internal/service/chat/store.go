package chat

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/flowchat/internal/model/chat"
	"github.com/zhouzirui/flowchat/internal/model/persona"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownPersona  = errors.New("unknown persona")
	ErrInvalidRole     = errors.New("invalid message role")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrTurnInProgress  = errors.New("a reply is still pending")
)

const defaultGreeting = "Hello! I'm your AI assistant. How can I help you today?"

// NotFoundError reports an operation on a session id the store does not hold.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %d not found", e.ID)
}

// Is lets callers match with errors.Is(err, ErrSessionNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

// Notifier is told whenever a store changes.
type Notifier interface {
	Notify(key string)
}

// Store holds the chat sessions of one UI session. It always contains at least
// one session and exactly one of them is active.
type Store struct {
	key      string
	personas persona.Store
	notifier Notifier

	mu       sync.Mutex
	sessions map[int]*chat.Session
	activeID int
	nextID   int
	notice   string
	pending  bool
	lastUsed time.Time
}

// NewStore returns a store seeded with one standard session.
func NewStore(key string, personas persona.Store, notifier Notifier) *Store {
	s := &Store{
		key:      key,
		personas: personas,
		notifier: notifier,
		sessions: make(map[int]*chat.Session),
		lastUsed: time.Now(),
	}
	s.createLocked(s.standardPersona())
	return s
}

// Key identifies the UI session that owns the store.
func (s *Store) Key() string {
	return s.key
}

// CreateSession adds a session greeted by the given persona and makes it active.
func (s *Store) CreateSession(personaID string) (int, error) {
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}

	s.mu.Lock()
	id := s.createLocked(p)
	s.mu.Unlock()

	s.notify()
	return id, nil
}

// SelectSession makes id the active session.
func (s *Store) SelectSession(id int) error {
	s.mu.Lock()
	s.touchLocked()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	changed := s.activeID != id
	s.activeID = id
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// AppendMessage adds a message to the end of a session transcript.
func (s *Store) AppendMessage(id int, role chat.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	s.touchLocked()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	session.Transcript = append(session.Transcript, chat.Message{Role: role, Content: content})
	s.mu.Unlock()

	s.notify()
	return nil
}

// DeleteSession removes a session. Deleting the active session activates the
// highest remaining id, or a fresh standard session when none remain.
func (s *Store) DeleteSession(id int) error {
	s.mu.Lock()
	s.touchLocked()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	delete(s.sessions, id)

	if len(s.sessions) == 0 {
		s.createLocked(s.standardPersona())
	} else if s.activeID == id {
		s.activeID = s.highestIDLocked()
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// ActiveID returns the id of the displayed session.
func (s *Store) ActiveID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the displayed session.
func (s *Store) Active() chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.sessions[s.activeID])
}

// Session returns a copy of the session with the given id.
func (s *Store) Session(id int) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, &NotFoundError{ID: id}
	}
	return copySession(session), nil
}

// Summaries lists sessions in ascending id order.
func (s *Store) Summaries() []chat.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]chat.Summary, 0, len(s.sessions))
	for _, session := range s.sessions {
		summaries = append(summaries, chat.Summary{
			ID:           session.ID,
			Title:        session.Title,
			Persona:      session.Persona,
			MessageCount: len(session.Transcript),
			Active:       session.ID == s.activeID,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// SetNotice records a message for the next render. Other tabs are not told to
// redraw, so the notice stays for the tab that submitted the turn.
func (s *Store) SetNotice(notice string) {
	s.mu.Lock()
	s.notice = notice
	s.mu.Unlock()
}

// TakeNotice returns the pending notice and clears it.
func (s *Store) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	notice := s.notice
	s.notice = ""
	return notice
}

// Pending reports whether a turn is waiting on the agent.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Store) beginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return false
	}
	s.pending = true
	return true
}

func (s *Store) endTurn() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

func (s *Store) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Store) touch() {
	s.mu.Lock()
	s.touchLocked()
	s.mu.Unlock()
}

func (s *Store) touchLocked() {
	s.lastUsed = time.Now()
}

func (s *Store) createLocked(p persona.Persona) int {
	s.touchLocked()
	s.nextID++
	id := s.nextID

	s.sessions[id] = &chat.Session{
		ID:         id,
		Title:      p.Title,
		Persona:    p.ID,
		Transcript: []chat.Message{{Role: chat.RoleAssistant, Content: p.OpeningLine}},
	}
	s.activeID = id
	return id
}

func (s *Store) highestIDLocked() int {
	highest := 0
	for id := range s.sessions {
		if id > highest {
			highest = id
		}
	}
	return highest
}

func (s *Store) standardPersona() persona.Persona {
	if p, ok := s.personas.FindByID(persona.Standard); ok {
		return p
	}
	return persona.Persona{ID: persona.Standard, Title: "AI Assistant", OpeningLine: defaultGreeting}
}

func (s *Store) notify() {
	if s.notifier != nil {
		s.notifier.Notify(s.key)
	}
}

func copySession(session *chat.Session) chat.Session {
	if session == nil {
		return chat.Session{}
	}
	copied := *session
	copied.Transcript = make([]chat.Message, len(session.Transcript))
	copy(copied.Transcript, session.Transcript)
	return copied
}
