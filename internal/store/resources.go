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

// ResourceStore keeps course materials as one document per course id,
// newest first.
type ResourceStore struct {
	pool *pgxpool.Pool
}

func NewResourceStore(pool *pgxpool.Pool) *ResourceStore {
	return &ResourceStore{pool: pool}
}

func (s *ResourceStore) FetchResources(ctx context.Context, courseID string) ([]model.Resource, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM resource_documents WHERE course_id = $1
	`, courseID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resources fetch: %w", err)
	}
	var resources []model.Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("resources document decode: %w", err)
	}
	return resources, nil
}

func (s *ResourceStore) SaveResources(ctx context.Context, courseID string, resources []model.Resource) error {
	if resources == nil {
		resources = []model.Resource{}
	}
	doc, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("resources document encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO resource_documents (course_id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (course_id) DO UPDATE
		SET doc = excluded.doc, updated_at = now()
	`, courseID, doc)
	if err != nil {
		return fmt.Errorf("resources save: %w", err)
	}
	return nil
}
