package db_test

import (
	"strings"
	"testing"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
)

func TestLoadMigrations_SortedAndNamed(t *testing.T) {
	migrations, err := db.LoadMigrations()
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}

	if len(migrations) < 2 {
		t.Fatalf("Expected at least 2 migrations, got %d", len(migrations))
	}

	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("Expected ascending versions, got %d then %d", migrations[i-1].Version, migrations[i].Version)
		}
	}

	if migrations[0].Name != "normalized_schema" {
		t.Errorf("Expected first migration 'normalized_schema', got %q", migrations[0].Name)
	}
}

func TestLoadMigrations_SchemaEnforcesSingleValueSlot(t *testing.T) {
	migrations, err := db.LoadMigrations()
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}

	schema := migrations[0].SQL
	for _, fragment := range []string{
		"device_name TEXT PRIMARY KEY",
		"metric_key TEXT PRIMARY KEY",
		"num_nonnulls(value_numeric, value_bool, value_text) = 1",
		"observed_at TIMESTAMPTZ NOT NULL",
	} {
		if !strings.Contains(schema, fragment) {
			t.Errorf("Expected schema to contain %q", fragment)
		}
	}
}

func TestLoadMigrations_ObservationIsUniquePerDevice(t *testing.T) {
	migrations, err := db.LoadMigrations()
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}

	var found bool
	for _, m := range migrations {
		if strings.Contains(m.SQL, "CREATE UNIQUE INDEX IF NOT EXISTS readings_device_observed_key ON readings (device_name, observed_at") {
			found = true
		}
	}
	if !found {
		t.Error("Expected a unique index on readings (device_name, observed_at)")
	}
	if last := migrations[len(migrations)-1]; last.Name != "unique_device_observation" {
		t.Errorf("Expected last migration 'unique_device_observation', got %q", last.Name)
	}
}
