package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// DefaultMaxRetries bounds how many times a room write is retried after a
// version conflict.
const DefaultMaxRetries = 5

// RoomStore is the persistence contract for rooms.  SwapRoom and
// DeleteRoom must be conditional on the version argument and report
// repository.ErrVersionConflict when it is stale.
type RoomStore interface {
	GetRoom(ctx context.Context, id uint64) (*model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	CreateRoom(ctx context.Context, rm *model.Room) error
	SwapRoom(ctx context.Context, rm *model.Room, version uint32) error
	DeleteRoom(ctx context.Context, id uint64, version uint32) error
}

// StudentStore is the slice of the student service occupancy depends on.
type StudentStore interface {
	GetStudent(ctx context.Context, id uint64) (*model.Student, error)
	GetStudents(ctx context.Context, ids []uint64) ([]model.Student, error)
	SetRoomNumber(ctx context.Context, id uint64, roomNumber *string) error
	// StudentsInRoom returns every student whose room number is number,
	// member or not.
	StudentsInRoom(ctx context.Context, number string) ([]model.Student, error)
}

// Service implements room assignment, removal and lifecycle on top of the
// two stores.  Room writes go through a version check so concurrent calls
// against the same room are serialised by the store; the student write
// always follows the room write and is compensated if it fails.
type Service struct {
	rooms      RoomStore
	students   StudentStore
	events     Events
	log        *zap.Logger
	maxRetries int
}

// NewService wires a Service.  events and log may be nil.
func NewService(rooms RoomStore, students StudentStore, events Events, log *zap.Logger, maxRetries int) *Service {
	if rooms == nil || students == nil {
		panic("nil store passed to occupancy.NewService")
	}
	if events == nil {
		events = noEvents{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &Service{rooms: rooms, students: students, events: events, log: log, maxRetries: maxRetries}
}

// RoomView is a room together with its resolved member records.
type RoomView struct {
	model.Room
	Members []model.Student `json:"members"`
}

// Assignment is the result of assigning or removing a student.
type Assignment struct {
	Room    RoomView      `json:"room"`
	Student model.Student `json:"student"`
}

// GetRoom returns a room with its members resolved.
func (s *Service) GetRoom(ctx context.Context, id uint64) (*RoomView, error) {
	rm, err := s.rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.students.GetStudents(ctx, rm.Students)
	if err != nil {
		return nil, fmt.Errorf("resolve members of room %d: %w", id, err)
	}
	return &RoomView{Room: *rm, Members: members}, nil
}

// ListRooms returns all rooms without resolving members.
func (s *Service) ListRooms(ctx context.Context) ([]model.Room, error) {
	return s.rooms.ListRooms(ctx)
}

// mutation prepares next from cur.  It must re-check every precondition
// because it runs again on each retry against a freshly read room.
type mutation func(cur, next *model.Room) error

// mutateRoom applies fn and writes the result conditionally on the version
// that was read.  The first attempt uses first when it is non-nil; later
// attempts re-read the room.  It returns the room as read and as written.
func (s *Service) mutateRoom(ctx context.Context, id uint64, first *model.Room, fn mutation) (*model.Room, *model.Room, error) {
	cur := first
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if cur == nil {
			var err error
			if cur, err = s.rooms.GetRoom(ctx, id); err != nil {
				return nil, nil, err
			}
		}
		next := cur.Clone()
		if err := fn(cur, next); err != nil {
			return nil, nil, err
		}
		err := s.rooms.SwapRoom(ctx, next, cur.Version)
		if err == nil {
			return cur, next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			if errors.Is(err, repository.ErrStudentInOtherRoom) {
				return nil, nil, ErrAssignedElsewhere
			}
			return nil, nil, err
		}
		s.log.Debug("room version conflict, retrying",
			zap.Uint64("room_id", id),
			zap.Int("attempt", attempt),
		)
		cur = nil
	}
	return nil, nil, ErrConcurrentUpdate
}

// view resolves members for a room that has already been written.  A
// failure here does not undo the write, so it is logged and an empty
// member list is returned instead.
func (s *Service) view(ctx context.Context, rm *model.Room) RoomView {
	members, err := s.students.GetStudents(ctx, rm.Students)
	if err != nil {
		s.log.Warn("resolve room members failed",
			zap.Uint64("room_id", rm.ID),
			zap.Error(err),
		)
		members = []model.Student{}
	}
	return RoomView{Room: *rm, Members: members}
}

// membersLeft re-reads a room after member records were pointed at it and
// returns the ids it no longer lists.  The room is nil, and every id is
// returned, when it has been deleted.
func (s *Service) membersLeft(ctx context.Context, roomID uint64, ids []uint64) (*model.Room, []uint64, error) {
	rm, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ids, nil
		}
		return nil, nil, err
	}
	var left []uint64
	for _, sid := range ids {
		if !rm.HasStudent(sid) {
			left = append(left, sid)
		}
	}
	return rm, left, nil
}

// clearStale clears the room number of each student in ids that still
// points at number.
func (s *Service) clearStale(ctx context.Context, number string, ids []uint64) error {
	var errs []error
	for _, sid := range ids {
		st, err := s.students.GetStudent(ctx, sid)
		if err != nil {
			if !errors.Is(err, ErrStudentNotFound) {
				errs = append(errs, fmt.Errorf("load student %d: %w", sid, err))
			}
			continue
		}
		if !st.InRoom(number) {
			continue
		}
		if err := s.students.SetRoomNumber(ctx, sid, nil); err != nil {
			errs = append(errs, fmt.Errorf("clear student %d: %w", sid, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish occupancy event failed",
			zap.String("type", string(ev.Type)),
			zap.Uint64("room_id", ev.RoomID),
			zap.Error(err),
		)
	}
}

// escalate records a failed compensation and builds the error returned to
// the caller.
func (s *Service) escalate(ctx context.Context, op string, rm *model.Room, studentID uint64, cause, compErr error) error {
	s.log.Error("occupancy inconsistency detected",
		zap.String("op", op),
		zap.Uint64("room_id", rm.ID),
		zap.String("room_number", rm.Number),
		zap.Uint64("student_id", studentID),
		zap.NamedError("cause", cause),
		zap.NamedError("compensation_error", compErr),
	)
	ev := roomEvent(EventInconsistency, rm, studentID)
	ev.Detail = fmt.Sprintf("%s: %v; compensation: %v", op, cause, compErr)
	s.publish(ctx, ev)
	return &InconsistencyError{Op: op, RoomID: rm.ID, StudentID: studentID, Cause: cause, CompensationErr: compErr}
}

func addMember(ids []uint64, id uint64) []uint64 {
	out := append(append([]uint64(nil), ids...), id)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dropMember(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, sid := range ids {
		if sid != id {
			out = append(out, sid)
		}
	}
	return out
}

// uniqueSorted de-duplicates ids and drops zeros.
func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func findStudent(members []model.Student, id uint64) (model.Student, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return model.Student{}, false
}
