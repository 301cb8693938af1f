package occupancy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

const opRemove = "remove student"

// RemoveStudent takes a student out of a room.  It mirrors AssignStudent:
// room first, then the student's room number is cleared, with the room
// change reverted if the student write fails.
func (s *Service) RemoveStudent(ctx context.Context, roomID, studentID uint64) (*Assignment, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	_, next, err := s.mutateRoom(ctx, roomID, room, func(cur, next *model.Room) error {
		if !cur.HasStudent(studentID) {
			return ErrNotAMember
		}
		next.Students = dropMember(cur.Students, studentID)
		// occupied is recomputed from membership, so an already
		// inconsistent count can never be pushed below zero.
		next.Occupied = len(next.Students)
		next.Status = DeriveStatus(cur.Status, next.Occupied, next.Capacity)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.students.SetRoomNumber(ctx, studentID, nil); err != nil {
		s.log.Warn("student write failed after room write, reverting room",
			zap.String("op", opRemove),
			zap.Uint64("room_id", roomID),
			zap.Uint64("student_id", studentID),
			zap.Error(err),
		)
		if _, _, compErr := s.mutateRoom(ctx, roomID, nil, undoRemove(studentID)); compErr != nil {
			return nil, s.escalate(ctx, opRemove, next, studentID, err, compErr)
		}
		return nil, fmt.Errorf("%s %d from room %d: %w", opRemove, studentID, roomID, err)
	}

	updated := *student
	updated.RoomNumber = nil
	s.publish(ctx, roomEvent(EventStudentRemoved, next, studentID))
	return &Assignment{Room: s.view(ctx, next), Student: updated}, nil
}

// undoRemove puts the student back.  It refuses to overfill the room if
// the freed slot was taken in the meantime; the caller then escalates.
func undoRemove(studentID uint64) mutation {
	return func(cur, next *model.Room) error {
		if cur.HasStudent(studentID) {
			return nil
		}
		if cur.Occupied >= cur.Capacity {
			return ErrRoomFull
		}
		next.Students = addMember(cur.Students, studentID)
		next.Occupied = len(next.Students)
		next.Status = DeriveStatus(cur.Status, next.Occupied, next.Capacity)
		return nil
	}
}
