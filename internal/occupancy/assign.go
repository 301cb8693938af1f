package occupancy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

const opAssign = "assign student"

// AssignStudent adds a student to a room.  The room is written first
// (member added, occupied recomputed, status re-derived), then the
// student's room number is set.  If the student write fails the room
// change is reverted; if that also fails an *InconsistencyError is
// returned.
func (s *Service) AssignStudent(ctx context.Context, roomID, studentID uint64) (*Assignment, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	_, next, err := s.mutateRoom(ctx, roomID, room, func(cur, next *model.Room) error {
		if cur.HasStudent(studentID) {
			return ErrAlreadyAssigned
		}
		if student.RoomNumber != nil && *student.RoomNumber != cur.Number {
			return ErrAssignedElsewhere
		}
		if cur.Occupied >= cur.Capacity {
			return ErrRoomFull
		}
		next.Students = addMember(cur.Students, studentID)
		next.Occupied = len(next.Students)
		next.Status = DeriveStatus(cur.Status, next.Occupied, next.Capacity)
		return nil
	})
	if err != nil {
		return nil, err
	}

	number := next.Number
	if err := s.students.SetRoomNumber(ctx, studentID, &number); err != nil {
		s.log.Warn("student write failed after room write, reverting room",
			zap.String("op", opAssign),
			zap.Uint64("room_id", roomID),
			zap.Uint64("student_id", studentID),
			zap.Error(err),
		)
		// A room deleted in the meantime has nothing left to revert.
		_, _, compErr := s.mutateRoom(ctx, roomID, nil, undoAssign(studentID))
		if compErr != nil && !errors.Is(compErr, ErrRoomNotFound) {
			return nil, s.escalate(ctx, opAssign, next, studentID, err, compErr)
		}
		return nil, fmt.Errorf("%s %d to room %d: %w", opAssign, studentID, roomID, err)
	}

	// A delete or removal may have run between the two writes.
	cur, left, err := s.membersLeft(ctx, roomID, []uint64{studentID})
	if err != nil {
		s.log.Warn("could not confirm assignment",
			zap.Uint64("room_id", roomID),
			zap.Uint64("student_id", studentID),
			zap.Error(err),
		)
	} else if len(left) > 0 {
		cause := ErrConcurrentUpdate
		if cur == nil {
			cause = ErrRoomNotFound
		}
		if clearErr := s.clearStale(ctx, number, left); clearErr != nil {
			return nil, s.escalate(ctx, opAssign, next, studentID, cause, clearErr)
		}
		return nil, fmt.Errorf("%s %d to room %d: %w", opAssign, studentID, roomID, cause)
	}

	view := s.view(ctx, next)
	updated, ok := findStudent(view.Members, studentID)
	if !ok {
		updated = *student
		updated.RoomNumber = &number
	}
	s.publish(ctx, roomEvent(EventStudentAssigned, next, studentID))
	return &Assignment{Room: view, Student: updated}, nil
}

// undoAssign is the inverse of an assignment, applied to whatever the room
// looks like now so concurrent changes to other members are kept.
func undoAssign(studentID uint64) mutation {
	return func(cur, next *model.Room) error {
		next.Students = dropMember(cur.Students, studentID)
		next.Occupied = len(next.Students)
		next.Status = DeriveStatus(cur.Status, next.Occupied, next.Capacity)
		return nil
	}
}
