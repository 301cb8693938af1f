// Package repository defines the Room and Student stores and the error
// values they share.  Stores return these sentinels (possibly wrapped) so
// that the occupancy service and the HTTP handlers can tell a missing
// record apart from a lost race or a broken connection.
package repository

import "errors"

// ErrRoomNotFound is returned when no room exists for the given ID.
var ErrRoomNotFound = errors.New("room not found")

// ErrStudentNotFound is returned when no student exists for the given ID.
var ErrStudentNotFound = errors.New("student not found")

// ErrVersionConflict is returned by conditional writes when the stored
// room version no longer matches the version the caller read.  Callers
// should re-read the room and retry.
var ErrVersionConflict = errors.New("room version conflict")

// ErrRoomNumberTaken is returned when creating a room whose number is
// already used by another room.
var ErrRoomNumberTaken = errors.New("room number already exists")

// ErrStudentInOtherRoom is returned when a membership write would make a
// student a member of two rooms at once.
var ErrStudentInOtherRoom = errors.New("student is a member of another room")
