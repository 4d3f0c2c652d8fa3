package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/checkfox/leadroute/internal/models"
)

// UnknownFieldRepository tracks inbound payload keys with no mapping rule
type UnknownFieldRepository interface {
	// RecordSighting upserts an unknown field for a source, bumping its
	// detection count and refreshing the sample value
	RecordSighting(ctx context.Context, sourceID, fieldName string, sampleValue string) error

	// ListBySource returns the unknown fields seen for a source, most
	// recently seen first
	ListBySource(ctx context.Context, sourceID string) ([]*models.UnknownField, error)

	// UpdateStatus records operator triage of an unknown field
	UpdateStatus(ctx context.Context, id int64, status models.UnknownFieldStatus) error
}

// unknownFieldRepository is the concrete implementation of UnknownFieldRepository
type unknownFieldRepository struct {
	db *sql.DB
}

// NewUnknownFieldRepository creates a new UnknownFieldRepository instance
func NewUnknownFieldRepository(db *sql.DB) UnknownFieldRepository {
	return &unknownFieldRepository{
		db: db,
	}
}

const unknownFieldSampleMax = 256

// RecordSighting upserts an unknown field for a source
func (r *unknownFieldRepository) RecordSighting(ctx context.Context, sourceID, fieldName string, sampleValue string) error {
	if len(sampleValue) > unknownFieldSampleMax {
		sampleValue = sampleValue[:unknownFieldSampleMax]
	}

	query := `
		INSERT INTO unknown_fields (
			source_id, field_name, sample_value, detected_count, status, first_seen, last_seen
		) VALUES ($1, $2, $3, 1, $4, $5, $5)
		ON CONFLICT (source_id, field_name) DO UPDATE SET
			detected_count = unknown_fields.detected_count + 1,
			sample_value = EXCLUDED.sample_value,
			last_seen = EXCLUDED.last_seen
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query, sourceID, fieldName, sampleValue, models.UnknownFieldUnmapped, now)
	if err != nil {
		return fmt.Errorf("failed to record unknown field: %w", err)
	}

	return nil
}

// ListBySource returns the unknown fields seen for a source
func (r *unknownFieldRepository) ListBySource(ctx context.Context, sourceID string) ([]*models.UnknownField, error) {
	query := `
		SELECT id, source_id, field_name, sample_value, detected_count, status, first_seen, last_seen
		FROM unknown_fields
		WHERE source_id = $1
		ORDER BY last_seen DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unknown fields: %w", err)
	}
	defer rows.Close()

	var fields []*models.UnknownField
	for rows.Next() {
		field := &models.UnknownField{}
		err := rows.Scan(
			&field.ID,
			&field.SourceID,
			&field.FieldName,
			&field.SampleValue,
			&field.DetectedCount,
			&field.Status,
			&field.FirstSeen,
			&field.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unknown field: %w", err)
		}
		fields = append(fields, field)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return fields, nil
}

// UpdateStatus records operator triage of an unknown field
func (r *unknownFieldRepository) UpdateStatus(ctx context.Context, id int64, status models.UnknownFieldStatus) error {
	query := `
		UPDATE unknown_fields
		SET status = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update unknown field status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("unknown field not found: %d", id)
	}

	return nil
}
