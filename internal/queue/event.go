// Package queue carries occupancy events over RabbitMQ: the payload, the
// publisher the service reports through and the audit consumer that
// appends every event to a log file.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/hostel-occupancy/internal/occupancy"
)

// QueueName is the durable queue every occupancy event is routed to.
const QueueName = "occupancy.events"

// OccupancyEvent is the wire form of an occupancy.Event.  It carries the
// room figures after the change so consumers do not need to query the
// database.
type OccupancyEvent struct {
    EventID    string `json:"event_id"`
    Type       string `json:"type"`
    RoomID     uint64 `json:"room_id"`
    RoomNumber string `json:"room_number"`
    StudentID  uint64 `json:"student_id,omitempty"`
    Occupied   int    `json:"occupied"`
    Capacity   int    `json:"capacity"`
    Status     string `json:"status"`
    Detail     string `json:"detail,omitempty"`
    OccurredAt string `json:"occurred_at"`
}

// NewOccupancyEvent stamps ev with a fresh id and the given time.
func NewOccupancyEvent(ev occupancy.Event, at time.Time) OccupancyEvent {
    return OccupancyEvent{
        EventID:    uuid.NewString(),
        Type:       string(ev.Type),
        RoomID:     ev.RoomID,
        RoomNumber: ev.RoomNumber,
        StudentID:  ev.StudentID,
        Occupied:   ev.Occupied,
        Capacity:   ev.Capacity,
        Status:     string(ev.Status),
        Detail:     ev.Detail,
        OccurredAt: at.UTC().Format(time.RFC3339),
    }
}
