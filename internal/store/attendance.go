package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"oikos/lms/internal/model"
)

// AttendanceStore keeps one document per course id mapping session date ->
// student email -> status.
type AttendanceStore struct {
	pool *pgxpool.Pool
}

func NewAttendanceStore(pool *pgxpool.Pool) *AttendanceStore {
	return &AttendanceStore{pool: pool}
}

// FetchForCourse returns the course's table. A missing document is an empty
// table, not an error.
func (s *AttendanceStore) FetchForCourse(ctx context.Context, courseID string) (model.AttendanceTable, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM attendance_documents WHERE course_id = $1
	`, courseID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AttendanceTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attendance fetch: %w", err)
	}
	var table model.AttendanceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("attendance document decode: %w", err)
	}
	if table == nil {
		table = model.AttendanceTable{}
	}
	return table, nil
}

// SaveForCourse replaces the whole per-course document. Concurrent writers
// of the same course race at document granularity: the last write to reach
// the store wins in full.
func (s *AttendanceStore) SaveForCourse(ctx context.Context, courseID string, table model.AttendanceTable) error {
	if table == nil {
		table = model.AttendanceTable{}
	}
	doc, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("attendance document encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attendance_documents (course_id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (course_id) DO UPDATE
		SET doc = excluded.doc, updated_at = now()
	`, courseID, doc)
	if err != nil {
		return fmt.Errorf("attendance save: %w", err)
	}
	return nil
}

// SetCell writes a single (course, date, email) cell without touching the
// rest of the document, so two instructors editing different cells of the
// same course cannot overwrite each other's rows.
func (s *AttendanceStore) SetCell(ctx context.Context, courseID, date, email string, status model.AttendanceStatus) error {
	if status == model.AttendanceUnset {
		return model.ErrValidation
	}
	email = model.NormalizeEmail(email)
	seed, err := json.Marshal(model.AttendanceTable{date: {email: status}})
	if err != nil {
		return fmt.Errorf("attendance cell encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attendance_documents (course_id, doc, updated_at)
		VALUES ($1, $4, now())
		ON CONFLICT (course_id) DO UPDATE
		SET doc = jsonb_set(
				jsonb_set(
					attendance_documents.doc,
					ARRAY[$2::text],
					COALESCE(attendance_documents.doc -> $2::text, '{}'::jsonb),
					true
				),
				ARRAY[$2::text, $3::text],
				to_jsonb($5::text),
				true
			),
		    updated_at = now()
	`, courseID, date, email, seed, string(status))
	if err != nil {
		return fmt.Errorf("attendance cell write: %w", err)
	}
	return nil
}
