package occupancy

import (
	"errors"
	"fmt"

	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// Not found.  These alias the store errors so callers can match either.
var (
	ErrRoomNotFound    = repository.ErrRoomNotFound
	ErrStudentNotFound = repository.ErrStudentNotFound
)

// Business-rule rejections.  None of them are retried and none leave a
// partial write behind.
var (
	ErrRoomFull                         = errors.New("room is full")
	ErrAlreadyAssigned                  = errors.New("student is already assigned to this room")
	ErrAssignedElsewhere                = errors.New("student is assigned to another room")
	ErrNotAMember                       = errors.New("student is not a member of this room")
	ErrCapacityExceededByInitialMembers = errors.New("initial members exceed room capacity")
	ErrInvalidCapacity                  = errors.New("capacity must be a positive integer")
	ErrInvalidStatus                    = errors.New("invalid room status")
	ErrInvalidRoomNumber                = errors.New("room number is required")
	ErrRoomNumberTaken                  = repository.ErrRoomNumberTaken
)

// ErrConcurrentUpdate is returned when a room kept changing underneath the
// operation until the retry budget ran out.
var ErrConcurrentUpdate = errors.New("room is being modified concurrently, try again")

// ErrInconsistent marks a two-record write whose second step failed and
// whose compensation also failed.  The room and student records disagree
// until ReconcileRoom is run.
var ErrInconsistent = errors.New("room and student records are inconsistent")

// InconsistencyError carries the details of an escalated partial failure.
// It matches ErrInconsistent with errors.Is, and unwraps to both the
// original cause and the compensation failure.
type InconsistencyError struct {
	Op              string
	RoomID          uint64
	StudentID       uint64
	Cause           error
	CompensationErr error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: room %d / student %d: %v (compensation failed: %v)",
		e.Op, e.RoomID, e.StudentID, e.Cause, e.CompensationErr)
}

func (e *InconsistencyError) Is(target error) bool { return target == ErrInconsistent }

func (e *InconsistencyError) Unwrap() []error { return []error{e.Cause, e.CompensationErr} }

// IsNotFound reports whether err means a room or student is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrStudentNotFound)
}

// IsInvariantViolation reports whether err is a business-rule rejection.
func IsInvariantViolation(err error) bool {
	for _, target := range []error{
		ErrRoomFull, ErrAlreadyAssigned, ErrAssignedElsewhere, ErrNotAMember,
		ErrCapacityExceededByInitialMembers, ErrInvalidCapacity, ErrInvalidStatus,
		ErrInvalidRoomNumber, ErrRoomNumberTaken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsPartialFailure reports whether err is an escalated inconsistency.
func IsPartialFailure(err error) bool { return errors.Is(err, ErrInconsistent) }
