package model

import "time"

// RoomStatus is the stored form of a room's availability.  Two values
// (available, occupied) follow the room's occupancy; the other two
// (maintenance, reserved) are set by an administrator and stay until an
// administrator changes them again.
type RoomStatus string

const (
    RoomAvailable   RoomStatus = "available"
    RoomOccupied    RoomStatus = "occupied"
    RoomMaintenance RoomStatus = "maintenance"
    RoomReserved    RoomStatus = "reserved"
)

// Valid reports whether s is one of the four known statuses.
func (s RoomStatus) Valid() bool {
    switch s {
    case RoomAvailable, RoomOccupied, RoomMaintenance, RoomReserved:
        return true
    }
    return false
}

// Room represents a hostel room together with its occupants.  The
// Occupied, Students and Status fields are denormalised and maintained by
// the occupancy service; handlers must never write them directly.
//
// Fields:
//  ID        – primary key identifier.
//  Number    – unique human readable room number (e.g. "B-204").
//  Capacity  – maximum number of occupants, always positive.
//  Occupied  – current number of occupants; equals len(Students).
//  Students  – IDs of member students, sorted ascending.
//  Status    – availability status (see RoomStatus).
//  Floor     – descriptive floor label.
//  Type      – descriptive room type (single, double, dorm...).
//  Hostel    – name of the hostel block the room belongs to.
//  Version   – optimistic concurrency token, bumped on every write.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Room struct {
    ID        uint64     `json:"id"`         // rooms.id
    Number    string     `json:"number"`     // rooms.number
    Capacity  int        `json:"capacity"`   // rooms.capacity
    Occupied  int        `json:"occupied"`   // rooms.occupied
    Students  []uint64   `json:"students"`   // room_students.student_id
    Status    RoomStatus `json:"status"`     // rooms.status
    Floor     string     `json:"floor"`      // rooms.floor
    Type      string     `json:"type"`       // rooms.type
    Hostel    string     `json:"hostel"`     // rooms.hostel
    Version   uint32     `json:"version"`    // rooms.version
    CreatedAt time.Time  `json:"created_at"` // rooms.created_at
    UpdatedAt time.Time  `json:"updated_at"` // rooms.updated_at
}

// HasStudent reports whether id is a member of the room.
func (r *Room) HasStudent(id uint64) bool {
    for _, sid := range r.Students {
        if sid == id {
            return true
        }
    }
    return false
}

// Clone returns a deep copy so callers can prepare a modified version of
// the room without touching the original.
func (r *Room) Clone() *Room {
    cp := *r
    cp.Students = make([]uint64, len(r.Students))
    copy(cp.Students, r.Students)
    return &cp
}
