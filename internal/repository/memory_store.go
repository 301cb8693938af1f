package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// MemoryStore keeps rooms and students in process memory.  It implements
// the same contract as RoomRepo and StudentRepo, including the version
// check on room writes and the one-room-per-student constraint, and is
// used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[uint64]*model.Room
	students map[uint64]*model.Student
	pkCount  uint64
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[uint64]*model.Room),
		students: make(map[uint64]*model.Student),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutStudent inserts or replaces a student record.  It stands in for the
// student management service when running without MySQL.
func (m *MemoryStore) PutStudent(s model.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneStudent(&s)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = m.now()
	}
	m.students[s.ID] = cp
}

func cloneStudent(s *model.Student) *model.Student {
	cp := *s
	if s.RoomNumber != nil {
		n := *s.RoomNumber
		cp.RoomNumber = &n
	}
	return &cp
}

func (m *MemoryStore) GetRoom(_ context.Context, id uint64) (*model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rm, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm.Clone(), nil
}

func (m *MemoryStore) ListRooms(_ context.Context) ([]model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Room, 0, len(m.rooms))
	for _, rm := range m.rooms {
		out = append(out, *rm.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) CreateRoom(_ context.Context, rm *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.rooms {
		if other.Number == rm.Number {
			return ErrRoomNumberTaken
		}
	}
	if err := m.checkMembersLocked(0, rm.Students); err != nil {
		return err
	}
	m.pkCount++
	now := m.now()
	rm.ID = m.pkCount
	rm.Version = 1
	rm.CreatedAt = now
	rm.UpdatedAt = now
	m.rooms[rm.ID] = rm.Clone()
	return nil
}

func (m *MemoryStore) SwapRoom(_ context.Context, rm *model.Room, version uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[rm.ID]
	if !ok {
		return ErrRoomNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	if err := m.checkMembersLocked(rm.ID, rm.Students); err != nil {
		return err
	}
	next := rm.Clone()
	next.Number = cur.Number
	next.CreatedAt = cur.CreatedAt
	next.Version = version + 1
	next.UpdatedAt = m.now()
	m.rooms[rm.ID] = next
	rm.Version = next.Version
	rm.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryStore) DeleteRoom(_ context.Context, id uint64, version uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(m.rooms, id)
	return nil
}

// checkMembersLocked enforces that no student listed in students is a
// member of a room other than roomID.  Callers must hold m.mu.
func (m *MemoryStore) checkMembersLocked(roomID uint64, students []uint64) error {
	for _, other := range m.rooms {
		if other.ID == roomID {
			continue
		}
		for _, sid := range students {
			if other.HasStudent(sid) {
				return ErrStudentInOtherRoom
			}
		}
	}
	return nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id uint64) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (m *MemoryStore) GetStudents(_ context.Context, ids []uint64) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Student, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			out = append(out, *cloneStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) StudentsInRoom(_ context.Context, number string) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Student, 0)
	for _, s := range m.students {
		if s.InRoom(number) {
			out = append(out, *cloneStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetRoomNumber(_ context.Context, id uint64, roomNumber *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return ErrStudentNotFound
	}
	if roomNumber == nil {
		s.RoomNumber = nil
	} else {
		n := *roomNumber
		s.RoomNumber = &n
	}
	s.UpdatedAt = m.now()
	return nil
}
