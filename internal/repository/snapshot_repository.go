package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/checkfox/leadroute/internal/models"
)

// SnapshotRepository loads an immutable view of the routing configuration
type SnapshotRepository interface {
	// Load reads all vendors, sources, customers, destinations, campaigns
	// and system fields in one pass and returns an indexed snapshot
	Load(ctx context.Context) (*models.ConfigSnapshot, error)
}

// snapshotRepository is the concrete implementation of SnapshotRepository
type snapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository instance
func NewSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &snapshotRepository{
		db: db,
	}
}

// Load reads the full routing configuration and returns an indexed snapshot
func (r *snapshotRepository) Load(ctx context.Context) (*models.ConfigSnapshot, error) {
	snapshot := &models.ConfigSnapshot{
		LoadedAt:     time.Now().UTC(),
		Vendors:      make(map[string]*models.Vendor),
		Sources:      make(map[string]*models.Source),
		Customers:    make(map[string]*models.Customer),
		Destinations: make(map[string]*models.Destination),
	}

	if err := r.loadVendors(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := r.loadSources(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := r.loadCustomers(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := r.loadDestinations(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := r.loadCampaigns(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := r.loadSystemFields(ctx, snapshot); err != nil {
		return nil, err
	}

	snapshot.Index()
	return snapshot, nil
}

func (r *snapshotRepository) loadVendors(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, status, created_at FROM vendors`)
	if err != nil {
		return fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		vendor := &models.Vendor{}
		if err := rows.Scan(&vendor.ID, &vendor.Name, &vendor.Status, &vendor.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan vendor: %w", err)
		}
		snapshot.Vendors[vendor.ID] = vendor
	}
	return rows.Err()
}

func (r *snapshotRepository) loadSources(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	query := `
		SELECT id, vendor_id, name, type, api_key, config, validation, mapping, rules, created_at
		FROM sources
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		source := &models.Source{}
		var config, validation, mapping, ruleSet []byte
		err := rows.Scan(
			&source.ID,
			&source.VendorID,
			&source.Name,
			&source.Type,
			&source.APIKey,
			&config,
			&validation,
			&mapping,
			&ruleSet,
			&source.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan source: %w", err)
		}

		if err := unmarshalColumn(config, &source.Config); err != nil {
			return fmt.Errorf("source %s config: %w", source.ID, err)
		}
		if err := unmarshalColumn(validation, &source.Validation); err != nil {
			return fmt.Errorf("source %s validation: %w", source.ID, err)
		}
		if err := unmarshalColumn(mapping, &source.Mapping); err != nil {
			return fmt.Errorf("source %s mapping: %w", source.ID, err)
		}
		if err := unmarshalColumn(ruleSet, &source.Rules); err != nil {
			return fmt.Errorf("source %s rules: %w", source.ID, err)
		}

		snapshot.Sources[source.ID] = source
	}
	return rows.Err()
}

func (r *snapshotRepository) loadCustomers(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, status, created_at FROM customers`)
	if err != nil {
		return fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		customer := &models.Customer{}
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Status, &customer.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan customer: %w", err)
		}
		snapshot.Customers[customer.ID] = customer
	}
	return rows.Err()
}

func (r *snapshotRepository) loadDestinations(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	query := `
		SELECT id, customer_id, name, config, enabled, approval_status, created_at
		FROM destinations
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query destinations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		destination := &models.Destination{}
		var config []byte
		err := rows.Scan(
			&destination.ID,
			&destination.CustomerID,
			&destination.Name,
			&config,
			&destination.Enabled,
			&destination.ApprovalStatus,
			&destination.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan destination: %w", err)
		}

		if err := unmarshalColumn(config, &destination.Config); err != nil {
			return fmt.Errorf("destination %s config: %w", destination.ID, err)
		}

		snapshot.Destinations[destination.ID] = destination
	}
	return rows.Err()
}

func (r *snapshotRepository) loadCampaigns(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	query := `
		SELECT id, customer_id, name, destination_id, source_ids, config, rules, mapping, created_at
		FROM campaigns
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		campaign := &models.Campaign{}
		var sourceIDs models.StringList
		var config, ruleSet, mapping []byte
		err := rows.Scan(
			&campaign.ID,
			&campaign.CustomerID,
			&campaign.Name,
			&campaign.DestinationID,
			&sourceIDs,
			&config,
			&ruleSet,
			&mapping,
			&campaign.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan campaign: %w", err)
		}

		campaign.SourceIDs = sourceIDs
		if err := unmarshalColumn(config, &campaign.Config); err != nil {
			return fmt.Errorf("campaign %s config: %w", campaign.ID, err)
		}
		if err := unmarshalColumn(ruleSet, &campaign.Rules); err != nil {
			return fmt.Errorf("campaign %s rules: %w", campaign.ID, err)
		}
		if err := unmarshalColumn(mapping, &campaign.Mapping); err != nil {
			return fmt.Errorf("campaign %s mapping: %w", campaign.ID, err)
		}

		snapshot.Campaigns = append(snapshot.Campaigns, campaign)
	}
	return rows.Err()
}

func (r *snapshotRepository) loadSystemFields(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	query := `SELECT id, field_key, label, data_type, aliases, created_at FROM system_fields`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query system fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var field models.SystemField
		var aliases models.StringList
		err := rows.Scan(&field.ID, &field.FieldKey, &field.Label, &field.DataType, &aliases, &field.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan system field: %w", err)
		}
		field.Aliases = aliases
		snapshot.SystemFields = append(snapshot.SystemFields, field)
	}
	return rows.Err()
}

func unmarshalColumn(raw []byte, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode config column: %w", err)
	}
	return nil
}
