package model

import "time"

// Student is the slice of a student record this service cares about.  The
// record itself is owned by the student management service; occupancy
// only reads it and writes RoomNumber.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name.
//  Email      – contact email.
//  RoomNumber – number of the room the student lives in (nil if none).
//  UpdatedAt  – last update timestamp.
type Student struct {
    ID         uint64    `json:"id"`          // students.id
    Name       string    `json:"name"`        // students.name
    Email      string    `json:"email"`       // students.email
    RoomNumber *string   `json:"room_number"` // students.room_number (nullable)
    UpdatedAt  time.Time `json:"updated_at"`  // students.updated_at
}

// InRoom reports whether the student's back-reference points at number.
func (s *Student) InRoom(number string) bool {
    return s.RoomNumber != nil && *s.RoomNumber == number
}
