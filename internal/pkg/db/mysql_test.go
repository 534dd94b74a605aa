package db

import (
	"strings"
	"testing"

	"shopflow/internal/pkg/bootstrap"
)

func TestDSNFromParts(t *testing.T) {
	dsn := DSN(bootstrap.MysqlConfig{Host: "db", Port: 3307, User: "shop", Password: "secret", Database: "storage"})

	for _, want := range []string{"shop:secret@tcp(db:3307)/storage", "parseTime=true", "clientFoundRows=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("Expected DSN %q to contain %q", dsn, want)
		}
	}
}

func TestDSNExplicit(t *testing.T) {
	explicit := "u:p@tcp(h:1)/d"
	if got := DSN(bootstrap.MysqlConfig{DSN: explicit, Host: "ignored"}); got != explicit {
		t.Errorf("Expected %s, got %s", explicit, got)
	}
}
