package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/rules"
)

// ConfigRepository is the save path for admin-edited routing configuration.
// Every write validates the rule tree and mapping rules first, so a
// malformed document never reaches the routing pipeline.
type ConfigRepository interface {
	// SystemFieldKeys returns the set of registered canonical field keys
	SystemFieldKeys(ctx context.Context) (map[string]bool, error)

	// UpdateSourceRules replaces a source's filtering rules and field mapping
	UpdateSourceRules(ctx context.Context, sourceID string, ruleSet models.SourceRules, mapping models.SourceMapping) error

	// UpdateCampaignRules replaces a campaign's rules and delivery mapping
	UpdateCampaignRules(ctx context.Context, campaignID string, ruleSet models.SourceRules, mapping models.SourceMapping) error
}

type configRepository struct {
	db *sql.DB
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(db *sql.DB) ConfigRepository {
	return &configRepository{
		db: db,
	}
}

func (r *configRepository) SystemFieldKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT field_key FROM system_fields`)
	if err != nil {
		return nil, fmt.Errorf("failed to query system fields: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan system field key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

func (r *configRepository) UpdateSourceRules(ctx context.Context, sourceID string, ruleSet models.SourceRules, mapping models.SourceMapping) error {
	if err := r.validate(ctx, ruleSet, mapping); err != nil {
		return err
	}
	return r.updateRow(ctx, "sources", sourceID, ruleSet, mapping)
}

func (r *configRepository) UpdateCampaignRules(ctx context.Context, campaignID string, ruleSet models.SourceRules, mapping models.SourceMapping) error {
	if err := r.validate(ctx, ruleSet, mapping); err != nil {
		return err
	}
	return r.updateRow(ctx, "campaigns", campaignID, ruleSet, mapping)
}

// validate runs write-time checks; a *models.ConfigurationError return means
// the document was refused before touching the database row.
func (r *configRepository) validate(ctx context.Context, ruleSet models.SourceRules, mapping models.SourceMapping) error {
	if err := rules.ValidateMappingRules(mapping.Rules); err != nil {
		return err
	}

	keys, err := r.SystemFieldKeys(ctx)
	if err != nil {
		return err
	}
	return rules.ValidateRuleGroup(ruleSet.Filtering, keys)
}

func (r *configRepository) updateRow(ctx context.Context, table, id string, ruleSet models.SourceRules, mapping models.SourceMapping) error {
	ruleJSON, err := json.Marshal(ruleSet)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET rules = $1, mapping = $2 WHERE id = $3`, table)
	result, err := r.db.ExecContext(ctx, query, ruleJSON, mappingJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update %s config: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s not found", table, id)
	}
	return nil
}
