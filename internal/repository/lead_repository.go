package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/checkfox/leadroute/internal/models"
)

// LeadRepository defines the interface for lead data persistence operations
type LeadRepository interface {
	// CreateLead creates a new lead record and assigns its ID
	CreateLead(ctx context.Context, lead *models.Lead) error

	// GetLeadByID retrieves a lead by its ID, including routing results
	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)

	// GetLeadByRef retrieves a lead by its public reference
	GetLeadByRef(ctx context.Context, leadRef string) (*models.Lead, error)

	// UpdateLeadRouted stores the canonical data, fingerprints and duplicate
	// flag produced while the lead moved through the pipeline, and stamps
	// processed_at
	UpdateLeadRouted(ctx context.Context, lead *models.Lead) error

	// AppendRoutingResult records one delivery attempt for a lead
	AppendRoutingResult(ctx context.Context, result *models.RoutingResult) error

	// CountCustomerDeliveries counts successful deliveries to a customer of
	// leads sharing any of the given fingerprints since the cutoff. A zero
	// cutoff means all time.
	CountCustomerDeliveries(ctx context.Context, customerID string, fingerprints []string, since time.Time) (int, error)

	// GetLeadCountsByStatus returns counts of leads grouped by status
	GetLeadCountsByStatus(ctx context.Context) (map[string]int, error)

	// CountRoutingResultsSince counts routing results by status since the
	// cutoff. A zero cutoff means all time.
	CountRoutingResultsSince(ctx context.Context, status models.RoutingResultStatus, since time.Time) (int, error)

	// GetRecentLeads returns the most recent leads ordered by created_at
	GetRecentLeads(ctx context.Context, limit int) ([]*models.Lead, error)
}

// leadRepository is the concrete implementation of LeadRepository
type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new LeadRepository instance
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{
		db: db,
	}
}

// CreateLead creates a new lead record and assigns its ID
func (r *leadRepository) CreateLead(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (
			lead_ref, vendor_id, source_id, raw_payload, data,
			status, rejection_reason, is_duplicate, fingerprints, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	if lead.LeadRef == "" {
		lead.LeadRef = models.NewLeadRef()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		lead.LeadRef,
		lead.VendorID,
		lead.SourceID,
		lead.RawPayload,
		lead.Data,
		lead.Status,
		lead.RejectionReason,
		lead.IsDuplicate,
		lead.Fingerprints,
		lead.CreatedAt,
	).Scan(&lead.ID)

	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	return nil
}

const leadColumns = `
	id, lead_ref, vendor_id, source_id, raw_payload, data,
	status, rejection_reason, is_duplicate, fingerprints, created_at, processed_at
`

func (r *leadRepository) scanLead(row *sql.Row) (*models.Lead, error) {
	lead := &models.Lead{}
	err := row.Scan(
		&lead.ID,
		&lead.LeadRef,
		&lead.VendorID,
		&lead.SourceID,
		&lead.RawPayload,
		&lead.Data,
		&lead.Status,
		&lead.RejectionReason,
		&lead.IsDuplicate,
		&lead.Fingerprints,
		&lead.CreatedAt,
		&lead.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// GetLeadByID retrieves a lead by its ID, including routing results
func (r *leadRepository) GetLeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := r.scanLead(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lead not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	if err := r.loadRoutingResults(ctx, lead); err != nil {
		return nil, err
	}

	return lead, nil
}

// GetLeadByRef retrieves a lead by its public reference
func (r *leadRepository) GetLeadByRef(ctx context.Context, leadRef string) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE lead_ref = $1`

	lead, err := r.scanLead(r.db.QueryRowContext(ctx, query, leadRef))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lead not found: %s", leadRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	if err := r.loadRoutingResults(ctx, lead); err != nil {
		return nil, err
	}

	return lead, nil
}

func (r *leadRepository) loadRoutingResults(ctx context.Context, lead *models.Lead) error {
	query := `
		SELECT
			id, lead_id, customer_id, customer_name, campaign_id, campaign_name,
			destination_id, destination_name, status, error_message, delivered_at
		FROM routing_results
		WHERE lead_id = $1
		ORDER BY delivered_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, lead.ID)
	if err != nil {
		return fmt.Errorf("failed to query routing results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result models.RoutingResult
		err := rows.Scan(
			&result.ID,
			&result.LeadID,
			&result.CustomerID,
			&result.CustomerName,
			&result.CampaignID,
			&result.CampaignName,
			&result.DestinationID,
			&result.DestinationName,
			&result.Status,
			&result.ErrorMessage,
			&result.DeliveredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan routing result: %w", err)
		}
		lead.RoutingResults = append(lead.RoutingResults, result)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	return nil
}

// UpdateLeadRouted stores the pipeline outcome for a lead
func (r *leadRepository) UpdateLeadRouted(ctx context.Context, lead *models.Lead) error {
	query := `
		UPDATE leads
		SET data = $1, status = $2, rejection_reason = $3,
		    is_duplicate = $4, fingerprints = $5, processed_at = $6
		WHERE id = $7
	`

	now := time.Now().UTC()
	lead.ProcessedAt = &now

	result, err := r.db.ExecContext(
		ctx,
		query,
		lead.Data,
		lead.Status,
		lead.RejectionReason,
		lead.IsDuplicate,
		lead.Fingerprints,
		lead.ProcessedAt,
		lead.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update routed lead: %w", err)
	}

	return requireRowAffected(result, lead.ID)
}

// AppendRoutingResult records one delivery attempt for a lead
func (r *leadRepository) AppendRoutingResult(ctx context.Context, result *models.RoutingResult) error {
	query := `
		INSERT INTO routing_results (
			lead_id, customer_id, customer_name, campaign_id, campaign_name,
			destination_id, destination_name, status, error_message, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	if result.DeliveredAt.IsZero() {
		result.DeliveredAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		result.LeadID,
		result.CustomerID,
		result.CustomerName,
		result.CampaignID,
		result.CampaignName,
		result.DestinationID,
		result.DestinationName,
		result.Status,
		result.ErrorMessage,
		result.DeliveredAt,
	).Scan(&result.ID)

	if err != nil {
		return fmt.Errorf("failed to append routing result: %w", err)
	}

	return nil
}

// CountCustomerDeliveries counts successful deliveries to a customer of leads
// sharing any of the given fingerprints since the cutoff
func (r *leadRepository) CountCustomerDeliveries(ctx context.Context, customerID string, fingerprints []string, since time.Time) (int, error) {
	if len(fingerprints) == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(*)
		FROM routing_results rr
		JOIN leads l ON l.id = rr.lead_id
		WHERE rr.customer_id = $1
		  AND rr.status = $2
		  AND l.fingerprints ?| $3
		  AND ($4::timestamptz IS NULL OR rr.delivered_at >= $4)
	`

	var cutoff interface{}
	if !since.IsZero() {
		cutoff = since
	}

	var count int
	err := r.db.QueryRowContext(
		ctx, query,
		customerID, models.RoutingDelivered, pq.Array(fingerprints), cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count customer deliveries: %w", err)
	}

	return count, nil
}

// GetLeadCountsByStatus returns counts of leads grouped by status
func (r *leadRepository) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM leads
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

// CountRoutingResultsSince counts routing results by status since the cutoff
func (r *leadRepository) CountRoutingResultsSince(ctx context.Context, status models.RoutingResultStatus, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM routing_results
		WHERE status = $1
		  AND ($2::timestamptz IS NULL OR delivered_at >= $2)
	`

	var cutoff interface{}
	if !since.IsZero() {
		cutoff = since
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, status, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count routing results: %w", err)
	}

	return count, nil
}

// GetRecentLeads returns the most recent leads ordered by created_at
func (r *leadRepository) GetRecentLeads(ctx context.Context, limit int) ([]*models.Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.Lead, 0, limit)
	for rows.Next() {
		lead := &models.Lead{}
		err := rows.Scan(
			&lead.ID,
			&lead.LeadRef,
			&lead.VendorID,
			&lead.SourceID,
			&lead.RawPayload,
			&lead.Data,
			&lead.Status,
			&lead.RejectionReason,
			&lead.IsDuplicate,
			&lead.Fingerprints,
			&lead.CreatedAt,
			&lead.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return leads, nil
}

func requireRowAffected(result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("lead not found: %d", id)
	}
	return nil
}
