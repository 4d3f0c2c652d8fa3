package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/checkfox/leadroute/internal/models"
)

// seedConfigFixtures inserts a vendor, a source, and two system fields
func seedConfigFixtures(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		`INSERT INTO vendors (id, name) VALUES ('ven-cfg', 'Config Vendor') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO sources (id, vendor_id, name, api_key) VALUES ('src-cfg', 'ven-cfg', 'Config Source', 'key-cfg') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO system_fields (id, field_key, label) VALUES ('sf-state', 'state', 'State') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO system_fields (id, field_key, label) VALUES ('sf-email', 'email', 'Email') ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed config fixtures: %v", err)
		}
	}
}

func cleanupConfigFixtures(t *testing.T, db *sql.DB) {
	for _, stmt := range []string{
		`DELETE FROM system_fields WHERE id IN ('sf-state', 'sf-email')`,
		`DELETE FROM sources WHERE id = 'src-cfg'`,
		`DELETE FROM vendors WHERE id = 'ven-cfg'`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Logf("Warning: failed to clean config fixtures: %v", err)
		}
	}
}

func TestConfigRepository_SystemFieldKeys(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	seedConfigFixtures(t, db)
	defer cleanupConfigFixtures(t, db)

	repo := NewConfigRepository(db)

	keys, err := repo.SystemFieldKeys(context.Background())
	if err != nil {
		t.Fatalf("SystemFieldKeys() failed: %v", err)
	}
	if !keys["state"] || !keys["email"] {
		t.Errorf("Expected registered field keys, got %v", keys)
	}
}

func TestConfigRepository_UpdateSourceRules(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	seedConfigFixtures(t, db)
	defer cleanupConfigFixtures(t, db)

	repo := NewConfigRepository(db)
	ctx := context.Background()

	ruleSet := models.SourceRules{
		Filtering: models.Grp(models.LogicAnd, models.Cond("state", models.OpEq, "CA")).Group,
	}
	mapping := models.SourceMapping{
		Rules: []models.MappingRule{{SourceField: "State", TargetField: "state"}},
	}

	if err := repo.UpdateSourceRules(ctx, "src-cfg", ruleSet, mapping); err != nil {
		t.Fatalf("UpdateSourceRules() failed: %v", err)
	}

	var stored string
	if err := db.QueryRow(`SELECT rules FROM sources WHERE id = 'src-cfg'`).Scan(&stored); err != nil {
		t.Fatalf("Failed to read back rules: %v", err)
	}
	if !strings.Contains(stored, `"state"`) || !strings.Contains(stored, `"CA"`) {
		t.Errorf("Expected persisted rule tree, got %s", stored)
	}
}

func TestConfigRepository_RefusesUnknownOperator(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	seedConfigFixtures(t, db)
	defer cleanupConfigFixtures(t, db)

	repo := NewConfigRepository(db)

	ruleSet := models.SourceRules{
		Filtering: models.Grp(models.LogicAnd, models.Cond("state", "matches", "CA")).Group,
	}

	err := repo.UpdateSourceRules(context.Background(), "src-cfg", ruleSet, models.SourceMapping{})
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if !strings.Contains(cfgErr.Field, ".op") {
		t.Errorf("Expected field path ending in .op, got %s", cfgErr.Field)
	}
}

func TestConfigRepository_RefusesDanglingFieldReference(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	seedConfigFixtures(t, db)
	defer cleanupConfigFixtures(t, db)

	repo := NewConfigRepository(db)

	ruleSet := models.SourceRules{
		Filtering: models.Grp(models.LogicAnd, models.Cond("shoe_size", models.OpEq, "11")).Group,
	}

	err := repo.UpdateSourceRules(context.Background(), "src-cfg", ruleSet, models.SourceMapping{})
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError for unregistered field, got %v", err)
	}
}

func TestConfigRepository_UnknownSource(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	seedConfigFixtures(t, db)
	defer cleanupConfigFixtures(t, db)

	repo := NewConfigRepository(db)

	err := repo.UpdateSourceRules(context.Background(), "src-missing", models.SourceRules{}, models.SourceMapping{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}
