package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/compustore/backend/internal/models"
)

// Memory is the Store used when no DATABASE_URL is configured, and by unit
// tests. Documents are kept serialized so readers never alias a writer's
// slices, mirroring the JSONB round-trip of the Postgres store. Lock order
// is session lock first, then the event or staff lock.
type Memory struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]*sync.Mutex

	evMu   sync.Mutex
	events []models.Event
	nextID int64

	staffMu     sync.Mutex
	staff       []models.StaffMember
	nextStaffID int64
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    map[string][]byte{},
		locks:       map[string]*sync.Mutex{},
		nextID:      1,
		nextStaffID: 1,
	}
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) Close() {}

// userLock returns the mutex serializing writes to one user's document.
func (s *Memory) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Memory) loadSession(userID string) (models.SessionState, bool, error) {
	s.mu.Lock()
	raw, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return models.SessionState{}, false, nil
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.SessionState{}, false, err
	}
	return state, true, nil
}

func (s *Memory) saveSession(userID string, state models.SessionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[userID] = b
	s.mu.Unlock()
	return nil
}

func (s *Memory) GetSession(ctx context.Context, userID string) (models.SessionState, error) {
	state, ok, err := s.loadSession(userID)
	if err != nil {
		return models.SessionState{}, err
	}
	if !ok {
		return models.SessionState{}, ErrNotFound
	}
	return state, nil
}

func (s *Memory) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

func (s *Memory) UpdateSession(ctx context.Context, userID string, create bool, fn func(*models.SessionState) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	state, ok, err := s.loadSession(userID)
	if err != nil {
		return err
	}
	if !ok {
		if !create {
			return ErrNotFound
		}
		state = models.NewSessionState(userID)
	}
	if err := fn(&state); err != nil {
		return err
	}
	return s.saveSession(userID, state)
}

func (s *Memory) AppendEvent(ctx context.Context, ev models.Event) (int64, error) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	ev.ID = s.nextID
	s.nextID++
	ev.Processed = false
	s.events = append(s.events, ev)
	return ev.ID, nil
}

func (s *Memory) UnprocessedEvents(ctx context.Context) ([]models.Event, error) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	var out []models.Event
	for _, ev := range s.events {
		if !ev.Processed {
			out = append(out, ev)
		}
	}
	return out, nil
}

// markProcessedLocked flips the flag and reports whether this call did it.
func (s *Memory) markProcessedLocked(eventID int64) bool {
	for i := range s.events {
		if s.events[i].ID == eventID {
			if s.events[i].Processed {
				return false
			}
			s.events[i].Processed = true
			return true
		}
	}
	return false
}

func (s *Memory) MarkEventProcessed(ctx context.Context, eventID int64) (bool, error) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return s.markProcessedLocked(eventID), nil
}

func (s *Memory) CommitInteraction(ctx context.Context, eventID int64, userID string, in models.Interaction) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.evMu.Lock()
	pending := false
	for i := range s.events {
		if s.events[i].ID == eventID {
			pending = !s.events[i].Processed
			break
		}
	}
	s.evMu.Unlock()
	if !pending {
		return false, nil
	}

	state, ok, err := s.loadSession(userID)
	if err != nil {
		return false, err
	}
	if !ok {
		state = models.NewSessionState(userID)
	}
	state.InteractionHistory = append(state.InteractionHistory, in)
	if err := s.saveSession(userID, state); err != nil {
		return false, err
	}

	// The flag flips only after the append has landed; a failed append
	// leaves the event pending.
	s.evMu.Lock()
	won := s.markProcessedLocked(eventID)
	s.evMu.Unlock()
	return won, nil
}

func (s *Memory) ListStaff(ctx context.Context) ([]models.StaffMember, error) {
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	out := make([]models.StaffMember, len(s.staff))
	copy(out, s.staff)
	return out, nil
}

func (s *Memory) GetStaffByName(ctx context.Context, name string) (models.StaffMember, error) {
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	for _, m := range s.staff {
		if m.Name == name {
			return m, nil
		}
	}
	return models.StaffMember{}, ErrNotFound
}

func (s *Memory) AddStaff(ctx context.Context, name, phoneNumber string) (models.StaffMember, error) {
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	for _, m := range s.staff {
		if m.Name == name {
			return models.StaffMember{}, ErrConflict
		}
	}
	m := models.StaffMember{ID: s.nextStaffID, Name: name, PhoneNumber: phoneNumber, IsFree: true}
	s.nextStaffID++
	s.staff = append(s.staff, m)
	return m, nil
}

func (s *Memory) DeleteStaff(ctx context.Context, name string) error {
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	for i, m := range s.staff {
		if m.Name == name {
			if !m.IsFree {
				return ErrBusy
			}
			s.staff = append(s.staff[:i], s.staff[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Memory) AssignStaff(ctx context.Context, userID string, pick func([]models.StaffMember) (models.StaffAssignment, int64, error)) (models.StaffAssignment, bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	state, ok, err := s.loadSession(userID)
	if err != nil {
		return models.StaffAssignment{}, false, err
	}
	if !ok {
		return models.StaffAssignment{}, false, ErrNotFound
	}
	if !state.AssignedStaff.IsZero() {
		return state.AssignedStaff, true, nil
	}

	// Hold the roster lock across pick, the session save, and the claim so
	// the whole assignment is one atomic unit, like the Postgres transaction.
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	pool := make([]models.StaffMember, len(s.staff))
	copy(pool, s.staff)

	assignment, claimID, err := pick(pool)
	if err != nil {
		return models.StaffAssignment{}, false, err
	}

	state.AssignedStaff = assignment
	if err := s.saveSession(userID, state); err != nil {
		return models.StaffAssignment{}, false, err
	}
	if claimID != 0 {
		for i := range s.staff {
			if s.staff[i].ID == claimID {
				s.staff[i].IsFree = false
				s.staff[i].AssignedUser = userID
			}
		}
	}
	return assignment, false, nil
}

func (s *Memory) ReleaseStaffRow(ctx context.Context, staffID int64) error {
	s.staffMu.Lock()
	defer s.staffMu.Unlock()
	for i := range s.staff {
		if s.staff[i].ID == staffID {
			s.staff[i].IsFree = true
			s.staff[i].AssignedUser = ""
			return nil
		}
	}
	return ErrNotFound
}
