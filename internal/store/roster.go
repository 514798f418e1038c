package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"oikos/lms/internal/model"
)

// RosterStore is the remote roster collection: one document per normalized
// student email. Upsert merges written fields into the stored document;
// fields absent from the write are preserved. There is no delete operation,
// a student who drops every course keeps an empty-set record.
type RosterStore struct {
	pool *pgxpool.Pool
}

func NewRosterStore(pool *pgxpool.Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// rosterDoc is the stored document body. LastUpdated lives in its own
// column, stamped server-side on every upsert.
type rosterDoc struct {
	Email               string   `json:"email"`
	Name                string   `json:"name"`
	RegisteredCourseIDs []string `json:"registeredCourseIds"`
}

// FetchAll returns every student record, or an error on store failure so
// callers can distinguish an empty roster from a failed fetch.
func (s *RosterStore) FetchAll(ctx context.Context) ([]model.StudentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc, last_updated
		FROM roster_documents
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("roster fetch: %w", err)
	}
	defer rows.Close()

	var records []model.StudentRecord
	for rows.Next() {
		var (
			data        []byte
			lastUpdated time.Time
		)
		if err := rows.Scan(&data, &lastUpdated); err != nil {
			return nil, fmt.Errorf("roster scan: %w", err)
		}
		var doc rosterDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("roster document decode: %w", err)
		}
		records = append(records, model.StudentRecord{
			Email:               model.NormalizeEmail(doc.Email),
			Name:                doc.Name,
			RegisteredCourseIDs: doc.RegisteredCourseIDs,
			LastUpdated:         lastUpdated,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster fetch: %w", err)
	}
	return records, nil
}

// Upsert writes one document at the record's normalized email key. The
// jsonb || merge keeps any stored fields the write does not mention.
func (s *RosterStore) Upsert(ctx context.Context, record model.StudentRecord) error {
	email := model.NormalizeEmail(record.Email)
	if email == "" {
		return model.ErrValidation
	}
	ids := record.RegisteredCourseIDs
	if ids == nil {
		ids = []string{}
	}
	doc, err := json.Marshal(rosterDoc{
		Email:               email,
		Name:                record.Name,
		RegisteredCourseIDs: ids,
	})
	if err != nil {
		return fmt.Errorf("roster document encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO roster_documents (email, doc, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (email) DO UPDATE
		SET doc = roster_documents.doc || excluded.doc,
		    last_updated = now()
	`, email, doc)
	if err != nil {
		return fmt.Errorf("roster upsert: %w", err)
	}
	return nil
}
