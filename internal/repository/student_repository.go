package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// StudentRepo reads students and maintains their room_number column.  It
// never inserts or deletes students: those records belong to the student
// management service.
type StudentRepo struct{ DB *sql.DB }

func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{DB: db} }

// GetStudent fetches a student by id.  It returns ErrStudentNotFound when
// no row matches.
func (r *StudentRepo) GetStudent(ctx context.Context, id uint64) (*model.Student, error) {
	var s model.Student
	var room sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,room_number,updated_at FROM students WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.Name, &s.Email, &room, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if room.Valid {
		n := room.String
		s.RoomNumber = &n
	}
	return &s, nil
}

// GetStudents fetches the students with the given ids, ordered by id.
// Unknown ids are skipped rather than reported.
func (r *StudentRepo) GetStudents(ctx context.Context, ids []uint64) ([]model.Student, error) {
	out := make([]model.Student, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids))
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, "?")
	}
	q := "SELECT id,name,email,room_number,updated_at FROM students WHERE id IN (" +
		strings.Join(placeholders, ",") + ") ORDER BY id"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanStudents(rows, out)
}

// StudentsInRoom returns every student whose room_number is number,
// ordered by id.
func (r *StudentRepo) StudentsInRoom(ctx context.Context, number string) ([]model.Student, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,email,room_number,updated_at FROM students WHERE room_number=? ORDER BY id",
		number)
	if err != nil {
		return nil, err
	}
	return scanStudents(rows, []model.Student{})
}

func scanStudents(rows *sql.Rows, out []model.Student) ([]model.Student, error) {
	defer rows.Close()
	for rows.Next() {
		var s model.Student
		var room sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &room, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if room.Valid {
			n := room.String
			s.RoomNumber = &n
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetRoomNumber points the student at a room, or clears the reference
// when roomNumber is nil.  The DSN is opened with clientFoundRows so that
// rewriting the same value still counts as a matched row.
func (r *StudentRepo) SetRoomNumber(ctx context.Context, id uint64, roomNumber *string) error {
	var v sql.NullString
	if roomNumber != nil {
		v = sql.NullString{String: *roomNumber, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE students SET room_number=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		v, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStudentNotFound
	}
	return nil
}
