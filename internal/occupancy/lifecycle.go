package occupancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

const (
	opCreate = "create room"
	opDelete = "delete room"
)

// NewRoom is the input to CreateRoom.  Status is optional; only the two
// override values are honoured, anything else is derived.
type NewRoom struct {
	Number   string
	Capacity int
	Status   model.RoomStatus
	Floor    string
	Type     string
	Hostel   string
	Students []uint64
}

// RoomUpdate lists the fields an administrator may change.  Nil fields are
// left as they are.
type RoomUpdate struct {
	Capacity *int
	Status   *model.RoomStatus
	Floor    *string
	Type     *string
	Hostel   *string
}

// Deletion reports what DeleteRoom did.
type Deletion struct {
	RoomID   uint64   `json:"room_id"`
	Number   string   `json:"number"`
	Released []uint64 `json:"released"`
}

// CreateRoom creates a room with an optional initial membership.  The
// initial members must exist, must not live elsewhere and must fit in the
// room.  After the room is stored each member's room number is set; if one
// of those writes fails, the members already written are cleared and the
// room is deleted again.
func (s *Service) CreateRoom(ctx context.Context, in NewRoom) (*RoomView, error) {
	number := strings.TrimSpace(in.Number)
	if number == "" {
		return nil, ErrInvalidRoomNumber
	}
	if in.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	state := Derived()
	if in.Status != "" {
		st, err := requestedState(in.Status)
		if err != nil {
			return nil, err
		}
		state = st
	}
	members := uniqueSorted(in.Students)
	if len(members) > in.Capacity {
		return nil, ErrCapacityExceededByInitialMembers
	}
	for _, sid := range members {
		st, err := s.students.GetStudent(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("initial member %d: %w", sid, err)
		}
		if st.RoomNumber != nil && *st.RoomNumber != number {
			return nil, fmt.Errorf("initial member %d: %w", sid, ErrAssignedElsewhere)
		}
	}

	rm := &model.Room{
		Number:   number,
		Capacity: in.Capacity,
		Occupied: len(members),
		Students: members,
		Status:   state.Resolve(len(members), in.Capacity),
		Floor:    strings.TrimSpace(in.Floor),
		Type:     strings.TrimSpace(in.Type),
		Hostel:   strings.TrimSpace(in.Hostel),
	}
	if err := s.rooms.CreateRoom(ctx, rm); err != nil {
		if errors.Is(err, repository.ErrStudentInOtherRoom) {
			return nil, ErrAssignedElsewhere
		}
		return nil, err
	}

	written := make([]uint64, 0, len(members))
	for _, sid := range members {
		if err := s.students.SetRoomNumber(ctx, sid, &number); err != nil {
			s.log.Warn("initial member write failed, rolling back room",
				zap.String("op", opCreate),
				zap.Uint64("room_id", rm.ID),
				zap.Uint64("student_id", sid),
				zap.Error(err),
			)
			if compErr := s.undoCreate(ctx, rm, written); compErr != nil {
				return nil, s.escalate(ctx, opCreate, rm, sid, err, compErr)
			}
			return nil, fmt.Errorf("%s %q: member %d: %w", opCreate, number, sid, err)
		}
		written = append(written, sid)
	}

	if len(written) > 0 {
		cur, left, err := s.membersLeft(ctx, rm.ID, written)
		switch {
		case err != nil:
			s.log.Warn("could not confirm initial members",
				zap.Uint64("room_id", rm.ID),
				zap.Error(err),
			)
		case len(left) > 0:
			if clearErr := s.clearStale(ctx, number, left); clearErr != nil {
				cause := ErrConcurrentUpdate
				if cur == nil {
					cause = ErrRoomNotFound
				}
				return nil, s.escalate(ctx, opCreate, rm, left[0], cause, clearErr)
			}
			if cur == nil {
				return nil, fmt.Errorf("%s %q: %w", opCreate, number, ErrRoomNotFound)
			}
			rm = cur
		}
	}

	s.publish(ctx, roomEvent(EventRoomCreated, rm, 0))
	v := s.view(ctx, rm)
	return &v, nil
}

// undoCreate clears the members written so far and removes the room.
func (s *Service) undoCreate(ctx context.Context, rm *model.Room, written []uint64) error {
	var errs []error
	for _, sid := range written {
		if err := s.students.SetRoomNumber(ctx, sid, nil); err != nil {
			errs = append(errs, fmt.Errorf("clear student %d: %w", sid, err))
		}
	}
	if len(errs) > 0 {
		// Keep the room so the students that could not be cleared do not
		// point at nothing.
		return errors.Join(errs...)
	}
	if err := s.rooms.DeleteRoom(ctx, rm.ID, rm.Version); err != nil && !errors.Is(err, ErrRoomNotFound) {
		return fmt.Errorf("delete room %d: %w", rm.ID, err)
	}
	return nil
}

// UpdateRoom applies an administrative edit.  Capacity must stay positive
// but may drop below the current occupancy: nobody is evicted, the room is
// simply reported as occupied.  Asking for maintenance or reserved pins the
// status; asking for available or occupied lifts the pin and re-derives.
func (s *Service) UpdateRoom(ctx context.Context, id uint64, upd RoomUpdate) (*RoomView, error) {
	if upd.Capacity != nil && *upd.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	var requested *State
	if upd.Status != nil {
		st, err := requestedState(*upd.Status)
		if err != nil {
			return nil, err
		}
		requested = &st
	}

	cur, next, err := s.mutateRoom(ctx, id, nil, func(cur, next *model.Room) error {
		if upd.Capacity != nil {
			next.Capacity = *upd.Capacity
		}
		if upd.Floor != nil {
			next.Floor = strings.TrimSpace(*upd.Floor)
		}
		if upd.Type != nil {
			next.Type = strings.TrimSpace(*upd.Type)
		}
		if upd.Hostel != nil {
			next.Hostel = strings.TrimSpace(*upd.Hostel)
		}
		state := StateOf(cur.Status)
		if requested != nil {
			state = *requested
		}
		next.Status = state.Resolve(next.Occupied, next.Capacity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if was, now := StateOf(cur.Status), StateOf(next.Status); was.IsPinned() != now.IsPinned() {
		s.log.Info("room status override changed",
			zap.Uint64("room_id", next.ID),
			zap.Bool("pinned", now.IsPinned()),
			zap.String("status", string(next.Status)),
		)
	}
	if next.Occupied > next.Capacity {
		s.log.Warn("room capacity set below current occupancy",
			zap.Uint64("room_id", next.ID),
			zap.Int("capacity", next.Capacity),
			zap.Int("occupied", next.Occupied),
		)
	}

	s.publish(ctx, roomEvent(EventRoomUpdated, next, 0))
	v := s.view(ctx, next)
	return &v, nil
}

// DeleteRoom clears every member's room number and then deletes the room,
// conditional on the version read at the start.  The room is never
// deleted while a member still points at it: if clearing fails the
// members already cleared are restored and the error returned.  If the
// room changed in between, the members that are still in it are restored
// and the whole operation is retried.
func (s *Service) DeleteRoom(ctx context.Context, id uint64) (*Deletion, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		rm, err := s.rooms.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		cleared, err := s.clearMembers(ctx, rm)
		if err != nil {
			if restoreErr := s.restoreMembers(ctx, rm.Number, cleared); restoreErr != nil {
				return nil, s.escalate(ctx, opDelete, rm, 0, err, restoreErr)
			}
			return nil, fmt.Errorf("%s %d: %w", opDelete, id, err)
		}

		err = s.rooms.DeleteRoom(ctx, id, rm.Version)
		if err == nil {
			swept, sweepErr := s.sweep(ctx, rm.Number)
			if sweepErr != nil {
				return nil, s.escalate(ctx, opDelete, rm, 0, ErrRoomNotFound, sweepErr)
			}
			s.publish(ctx, roomEvent(EventRoomDeleted, rm, 0))
			return &Deletion{RoomID: id, Number: rm.Number, Released: uniqueSorted(append(cleared, swept...))}, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			if errors.Is(err, ErrRoomNotFound) {
				return nil, err
			}
			if restoreErr := s.restoreMembers(ctx, rm.Number, cleared); restoreErr != nil {
				return nil, s.escalate(ctx, opDelete, rm, 0, err, restoreErr)
			}
			return nil, fmt.Errorf("%s %d: %w", opDelete, id, err)
		}

		// Restore only those still listed; someone may have removed a
		// member while we were clearing.
		now, getErr := s.rooms.GetRoom(ctx, id)
		if getErr != nil {
			if errors.Is(getErr, ErrRoomNotFound) {
				return nil, getErr
			}
			return nil, s.escalate(ctx, opDelete, rm, 0, err, getErr)
		}
		still := make([]uint64, 0, len(cleared))
		for _, sid := range cleared {
			if now.HasStudent(sid) {
				still = append(still, sid)
			}
		}
		if restoreErr := s.restoreMembers(ctx, rm.Number, still); restoreErr != nil {
			return nil, s.escalate(ctx, opDelete, rm, 0, err, restoreErr)
		}
		s.log.Debug("room changed during delete, retrying",
			zap.Uint64("room_id", id),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrConcurrentUpdate
}

// clearMembers nulls the room number of every member that points at the
// room and returns the ids it cleared.  Members whose record is gone or
// points elsewhere are skipped since they hold no reference to this room.
func (s *Service) clearMembers(ctx context.Context, rm *model.Room) ([]uint64, error) {
	cleared := make([]uint64, 0, len(rm.Students))
	for _, sid := range rm.Students {
		st, err := s.students.GetStudent(ctx, sid)
		if err != nil {
			if errors.Is(err, ErrStudentNotFound) {
				continue
			}
			return cleared, fmt.Errorf("load member %d: %w", sid, err)
		}
		if !st.InRoom(rm.Number) {
			continue
		}
		if err := s.students.SetRoomNumber(ctx, sid, nil); err != nil {
			return cleared, fmt.Errorf("clear member %d: %w", sid, err)
		}
		cleared = append(cleared, sid)
	}
	return cleared, nil
}

// sweep clears every student still pointing at the number of a deleted
// room, such as one an assignment wrote after the members were cleared.
func (s *Service) sweep(ctx context.Context, number string) ([]uint64, error) {
	strays, err := s.students.StudentsInRoom(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("find students in %q: %w", number, err)
	}
	swept := make([]uint64, 0, len(strays))
	var errs []error
	for _, st := range strays {
		if err := s.students.SetRoomNumber(ctx, st.ID, nil); err != nil {
			errs = append(errs, fmt.Errorf("clear student %d: %w", st.ID, err))
			continue
		}
		swept = append(swept, st.ID)
	}
	if len(swept) > 0 {
		s.log.Warn("cleared students left pointing at deleted room",
			zap.String("room_number", number),
			zap.Uint64s("students", swept),
		)
	}
	return swept, errors.Join(errs...)
}

func (s *Service) restoreMembers(ctx context.Context, number string, ids []uint64) error {
	var errs []error
	for _, sid := range ids {
		n := number
		if err := s.students.SetRoomNumber(ctx, sid, &n); err != nil {
			errs = append(errs, fmt.Errorf("restore member %d: %w", sid, err))
		}
	}
	return errors.Join(errs...)
}
