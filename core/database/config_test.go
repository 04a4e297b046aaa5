package database

import (
	"context"
	"strings"
	"testing"
)

func TestNormalizeDefaultsToMemory(t *testing.T) {
	var c Config
	if err := c.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Driver != DriverMemory {
		t.Fatalf("driver = %q", c.Driver)
	}
	if c.IsSQL() {
		t.Fatalf("memory must not be SQL")
	}
}

func TestNormalizePostgres(t *testing.T) {
	c := Config{Driver: "Postgres"}
	if err := c.Normalize(); err == nil {
		t.Fatalf("expected error without host/name")
	}
	c = Config{Driver: "postgres", Host: "db", Name: "insure", User: "bot", Password: "p@ss"}
	if err := c.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Port != "5432" || c.SSLMode != "disable" {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if !c.IsSQL() {
		t.Fatalf("postgres must be SQL")
	}
	if !strings.Contains(c.DSN(), "dbname=insure") {
		t.Fatalf("dsn = %q", c.DSN())
	}
	if got := c.MigrateURL(); got != "postgres://bot:p%40ss@db:5432/insure?sslmode=disable" {
		t.Fatalf("migrate url = %q", got)
	}
}

func TestNormalizeFileDrivers(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverBadger} {
		c := Config{Driver: driver}
		if err := c.Normalize(); err == nil {
			t.Fatalf("%s: expected error without path", driver)
		}
	}

	c := Config{Driver: DriverSQLite, Path: "data/sessions.db"}
	if err := c.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.HasPrefix(c.DSN(), "file:data/sessions.db?") {
		t.Fatalf("dsn = %q", c.DSN())
	}
	if c.MigrateURL() != "sqlite://data/sessions.db" {
		t.Fatalf("migrate url = %q", c.MigrateURL())
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	c := Config{Driver: "mongo"}
	if err := c.Normalize(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestBetween(t *testing.T) {
	files := []string{"000001_create_sessions.up.sql", "000002_add_index.up.sql", "notes.up.sql", "000003_x.up.sql"}
	got := Between(files, 1, 3)
	if len(got) != 2 || got[0] != "000002_add_index.up.sql" || got[1] != "000003_x.up.sql" {
		t.Fatalf("Between = %v", got)
	}
	if got := Between(files, 3, 3); len(got) != 0 {
		t.Fatalf("no-op range = %v", got)
	}
}

func TestMigrationsDir(t *testing.T) {
	dir, err := MigrationsDir(Config{Driver: DriverSQLite})
	if err != nil {
		t.Fatalf("MigrationsDir: %v", err)
	}
	if !strings.HasSuffix(dir, "/migrations/sqlite") {
		t.Fatalf("dir = %q", dir)
	}
}

func TestMigrateSkipsNonSQL(t *testing.T) {
	if err := Migrate(context.Background(), Config{Driver: DriverBadger, Path: t.TempDir()}); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
}
