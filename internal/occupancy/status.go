// Package occupancy keeps a room's occupied count, status and member list
// consistent with each member student's room number.
//
// Status is handled as a tagged value: a room is either in the derived
// state, where its status follows occupancy (available below capacity,
// occupied at or above it), or pinned by an administrator to maintenance
// or reserved.  Occupancy changes never move a pinned room; only an
// explicit status change does.
package occupancy

import "github.com/iliyamo/hostel-occupancy/internal/model"

// State is the in-memory form of a room status.  The zero value is the
// derived state.
type State struct {
	pinned model.RoomStatus
}

// Derived returns the state whose status follows occupancy.
func Derived() State { return State{} }

// Pinned returns the state pinned to s.  It returns ErrInvalidStatus
// unless s is maintenance or reserved.
func Pinned(s model.RoomStatus) (State, error) {
	if !isOverride(s) {
		return State{}, ErrInvalidStatus
	}
	return State{pinned: s}, nil
}

// StateOf lifts a stored status into a State.  Anything other than the
// two override values, including unknown strings, is treated as derived.
func StateOf(s model.RoomStatus) State {
	if isOverride(s) {
		return State{pinned: s}
	}
	return State{}
}

// IsPinned reports whether an administrator override is in effect.
func (st State) IsPinned() bool { return st.pinned != "" }

// Resolve collapses the state to the stored four-value status.
func (st State) Resolve(occupied, capacity int) model.RoomStatus {
	if st.pinned != "" {
		return st.pinned
	}
	if occupied >= capacity {
		return model.RoomOccupied
	}
	return model.RoomAvailable
}

// DeriveStatus maps the current status and occupancy figures to the status
// the room should have.  It is pure and total.
func DeriveStatus(current model.RoomStatus, occupied, capacity int) model.RoomStatus {
	return StateOf(current).Resolve(occupied, capacity)
}

// requestedState turns a status an administrator asked for into a State.
// Asking for available or occupied lifts any override; the resulting
// status is then derived from occupancy rather than taken literally.
func requestedState(s model.RoomStatus) (State, error) {
	if !s.Valid() {
		return State{}, ErrInvalidStatus
	}
	if isOverride(s) {
		return Pinned(s)
	}
	return Derived(), nil
}

func isOverride(s model.RoomStatus) bool {
	return s == model.RoomMaintenance || s == model.RoomReserved
}
