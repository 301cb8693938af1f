package occupancy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// Reconciliation reports what ReconcileRoom changed.
type Reconciliation struct {
	Room              RoomView         `json:"room"`
	DroppedMembers    []uint64         `json:"dropped_members"`
	RepointedStudents []uint64         `json:"repointed_students"`
	ClearedStudents   []uint64         `json:"cleared_students"`
	OccupiedBefore    int              `json:"occupied_before"`
	OccupiedAfter     int              `json:"occupied_after"`
	StatusBefore      model.RoomStatus `json:"status_before"`
	StatusAfter       model.RoomStatus `json:"status_after"`
}

// ReconcileRoom repairs a room whose records disagree.  Members without a
// student record are dropped, occupied is recomputed from the member list,
// status is re-derived and every remaining member's room number is pointed
// back at the room.  Students pointing at the room without being listed
// are cleared.  Members over capacity are kept.
func (s *Service) ReconcileRoom(ctx context.Context, id uint64) (*Reconciliation, error) {
	var dropped []uint64
	cur, next, err := s.mutateRoom(ctx, id, nil, func(cur, next *model.Room) error {
		known, err := s.students.GetStudents(ctx, cur.Students)
		if err != nil {
			return fmt.Errorf("load members of room %d: %w", id, err)
		}
		exists := make(map[uint64]struct{}, len(known))
		for _, st := range known {
			exists[st.ID] = struct{}{}
		}
		dropped = dropped[:0]
		keep := make([]uint64, 0, len(cur.Students))
		for _, sid := range cur.Students {
			if _, ok := exists[sid]; ok {
				keep = append(keep, sid)
			} else {
				dropped = append(dropped, sid)
			}
		}
		next.Students = keep
		next.Occupied = len(keep)
		next.Status = DeriveStatus(cur.Status, next.Occupied, next.Capacity)
		return nil
	})
	if err != nil {
		return nil, err
	}

	members, err := s.students.GetStudents(ctx, next.Students)
	if err != nil {
		return nil, fmt.Errorf("load members of room %d: %w", id, err)
	}
	var repointed []uint64
	var errs []error
	for _, st := range members {
		if st.InRoom(next.Number) {
			continue
		}
		number := next.Number
		if err := s.students.SetRoomNumber(ctx, st.ID, &number); err != nil {
			errs = append(errs, fmt.Errorf("repoint student %d: %w", st.ID, err))
			continue
		}
		repointed = append(repointed, st.ID)
	}
	outsiders, err := s.students.StudentsInRoom(ctx, next.Number)
	if err != nil {
		errs = append(errs, fmt.Errorf("find students in %q: %w", next.Number, err))
	}
	var cleared []uint64
	for _, st := range outsiders {
		if next.HasStudent(st.ID) {
			continue
		}
		if err := s.students.SetRoomNumber(ctx, st.ID, nil); err != nil {
			errs = append(errs, fmt.Errorf("clear student %d: %w", st.ID, err))
			continue
		}
		cleared = append(cleared, st.ID)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("reconcile room %d: %w", id, errors.Join(errs...))
	}

	res := &Reconciliation{
		Room:              s.view(ctx, next),
		DroppedMembers:    nonNil(dropped),
		RepointedStudents: nonNil(repointed),
		ClearedStudents:   nonNil(cleared),
		OccupiedBefore:    cur.Occupied,
		OccupiedAfter:     next.Occupied,
		StatusBefore:      cur.Status,
		StatusAfter:       next.Status,
	}
	if res.changed() {
		s.log.Info("room reconciled",
			zap.Uint64("room_id", id),
			zap.Uint64s("dropped", res.DroppedMembers),
			zap.Uint64s("repointed", res.RepointedStudents),
			zap.Uint64s("cleared", res.ClearedStudents),
			zap.Int("occupied_before", res.OccupiedBefore),
			zap.Int("occupied_after", res.OccupiedAfter),
		)
	}
	ev := roomEvent(EventRoomReconciled, next, 0)
	ev.Detail = fmt.Sprintf("dropped=%v repointed=%v cleared=%v",
		res.DroppedMembers, res.RepointedStudents, res.ClearedStudents)
	s.publish(ctx, ev)
	return res, nil
}

func (r *Reconciliation) changed() bool {
	return len(r.DroppedMembers) > 0 || len(r.RepointedStudents) > 0 || len(r.ClearedStudents) > 0 ||
		r.OccupiedBefore != r.OccupiedAfter || r.StatusBefore != r.StatusAfter
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
