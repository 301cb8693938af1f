package occupancy

import (
	"context"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// EventType names a change the service reports after it has been applied.
type EventType string

const (
	EventRoomCreated     EventType = "room.created"
	EventRoomUpdated     EventType = "room.updated"
	EventRoomDeleted     EventType = "room.deleted"
	EventStudentAssigned EventType = "student.assigned"
	EventStudentRemoved  EventType = "student.removed"
	EventRoomReconciled  EventType = "room.reconciled"
	EventInconsistency   EventType = "occupancy.inconsistency"
)

// Event is a notification about a room after an operation.  StudentID is
// zero for room-level events.
type Event struct {
	Type       EventType
	RoomID     uint64
	RoomNumber string
	StudentID  uint64
	Occupied   int
	Capacity   int
	Status     model.RoomStatus
	Detail     string
}

// Events receives notifications.  Implementations should not block for
// long; a returned error is logged and otherwise ignored.
type Events interface {
	Publish(ctx context.Context, ev Event) error
}

type noEvents struct{}

func (noEvents) Publish(context.Context, Event) error { return nil }

func roomEvent(t EventType, rm *model.Room, studentID uint64) Event {
	return Event{
		Type:       t,
		RoomID:     rm.ID,
		RoomNumber: rm.Number,
		StudentID:  studentID,
		Occupied:   rm.Occupied,
		Capacity:   rm.Capacity,
		Status:     rm.Status,
	}
}
