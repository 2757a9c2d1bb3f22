//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_Migrated(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	for _, table := range []string{"clients", "products", "client_products", "calendar_events"} {
		var exists bool
		err := testDB.DB.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to look up %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestTestDB_CatalogSeeded(t *testing.T) {
	testDB := GetTestDB(t)

	var count int
	err := testDB.DB.QueryRow(context.Background(), "SELECT COUNT(*) FROM products").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count products: %v", err)
	}
	if count < 5 {
		t.Errorf("expected at least 5 seeded products, got %d", count)
	}
}
