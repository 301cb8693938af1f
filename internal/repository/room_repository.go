package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// RoomRepo persists rooms and their membership rows in MySQL.  Every write
// is conditional on the version the caller read, so concurrent writers
// against the same room are serialised by the database: exactly one of
// them succeeds and the others receive ErrVersionConflict.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, number, capacity, occupied, status, floor, type, hostel, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(s rowScanner) (*model.Room, error) {
	var rm model.Room
	var status string
	if err := s.Scan(&rm.ID, &rm.Number, &rm.Capacity, &rm.Occupied, &status,
		&rm.Floor, &rm.Type, &rm.Hostel, &rm.Version, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	rm.Status = model.RoomStatus(status)
	rm.Students = []uint64{}
	return &rm, nil
}

// GetRoom loads a room and its member IDs.  It returns ErrRoomNotFound
// when no row matches.
func (r *RoomRepo) GetRoom(ctx context.Context, id uint64) (*model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT student_id FROM room_students WHERE room_id = ? ORDER BY student_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid uint64
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		rm.Students = append(rm.Students, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rm, nil
}

// ListRooms returns every room ordered by number, with members populated
// by a single follow-up query.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rooms := make([]model.Room, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		index[rm.ID] = len(rooms)
		rooms = append(rooms, *rm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]interface{}, 0, len(rooms))
	placeholders := make([]string, 0, len(rooms))
	for _, rm := range rooms {
		ids = append(ids, rm.ID)
		placeholders = append(placeholders, "?")
	}
	q := `SELECT room_id, student_id FROM room_students
	      WHERE room_id IN (` + strings.Join(placeholders, ",") + `)
	      ORDER BY room_id, student_id`
	mrows, err := r.db.QueryContext(ctx, q, ids...)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var roomID, sid uint64
		if err := mrows.Scan(&roomID, &sid); err != nil {
			return nil, err
		}
		idx, ok := index[roomID]
		if !ok {
			continue
		}
		rooms[idx].Students = append(rooms[idx].Students, sid)
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom inserts the room and its initial membership in one
// transaction.  On success ID, Version and the timestamps are populated.
// A duplicate number yields ErrRoomNumberTaken; a member that already
// belongs to another room yields ErrStudentInOtherRoom.
func (r *RoomRepo) CreateRoom(ctx context.Context, rm *model.Room) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO rooms (number, capacity, occupied, status, floor, type, hostel, version)
	             VALUES (?, ?, ?, ?, ?, ?, ?, 1)`
	res, err := tx.ExecContext(ctx, ins, rm.Number, rm.Capacity, rm.Occupied, string(rm.Status), rm.Floor, rm.Type, rm.Hostel)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrRoomNumberTaken
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertMembersTx(ctx, tx, uint64(id), rm.Students); err != nil {
		return err
	}
	var created model.Room
	if err := tx.QueryRowContext(ctx, `SELECT version, created_at, updated_at FROM rooms WHERE id = ?`, id).
		Scan(&created.Version, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	rm.ID = uint64(id)
	rm.Version = created.Version
	rm.CreatedAt = created.CreatedAt
	rm.UpdatedAt = created.UpdatedAt
	return nil
}

// SwapRoom replaces the stored room with rm if, and only if, the stored
// version still equals version.  Membership rows are rewritten in the same
// transaction.  On success rm.Version is advanced.  It returns
// ErrRoomNotFound when the room is gone and ErrVersionConflict when
// another writer got there first.
func (r *RoomRepo) SwapRoom(ctx context.Context, rm *model.Room, version uint32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE rooms
	             SET capacity = ?, occupied = ?, status = ?, floor = ?, type = ?, hostel = ?,
	                 version = version + 1, updated_at = CURRENT_TIMESTAMP
	             WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, upd, rm.Capacity, rm.Occupied, string(rm.Status), rm.Floor, rm.Type, rm.Hostel, rm.ID, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return missingOrConflict(ctx, tx, rm.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_students WHERE room_id = ?`, rm.ID); err != nil {
		return err
	}
	if err := insertMembersTx(ctx, tx, rm.ID, rm.Students); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `SELECT updated_at FROM rooms WHERE id = ?`, rm.ID).Scan(&rm.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	rm.Version = version + 1
	return nil
}

// DeleteRoom removes the room and its membership rows, conditional on the
// stored version.  Error semantics match SwapRoom.
func (r *RoomRepo) DeleteRoom(ctx context.Context, id uint64, version uint32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return missingOrConflict(ctx, tx, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_students WHERE room_id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// missingOrConflict decides why a conditional write matched no row.
func missingOrConflict(ctx context.Context, tx *sql.Tx, id uint64) error {
	var v uint32
	err := tx.QueryRowContext(ctx, `SELECT version FROM rooms WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

// insertMembersTx writes one room_students row per member in a single
// statement.  An empty slice is a no-op.
func insertMembersTx(ctx context.Context, tx *sql.Tx, roomID uint64, students []uint64) error {
	if len(students) == 0 {
		return nil
	}
	query := `INSERT INTO room_students (room_id, student_id) VALUES `
	args := make([]interface{}, 0, len(students)*2)
	for i, sid := range students {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, roomID, sid)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrStudentInOtherRoom
		}
		return err
	}
	return nil
}

// isDuplicateKey reports whether err is MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
