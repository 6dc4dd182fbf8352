package db

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
)

func TestNormalizeDSNEnablesParseTime(t *testing.T) {
	got, err := normalizeDSN("grader:secret@tcp(127.0.0.1:3306)/autograde")
	if err != nil {
		t.Fatalf("normalize dsn failed: %v", err)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("expected parseTime in dsn, got %s", got)
	}
	if !strings.Contains(got, "/autograde") {
		t.Fatalf("expected database name kept, got %s", got)
	}
}

func TestNormalizeDSNRejectsGarbage(t *testing.T) {
	if _, err := normalizeDSN("tcp(127.0.0.1:3306"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(fmt.Errorf("other")) {
		t.Fatalf("unexpected match")
	}
}

func TestNewMySQLWithConfigValidation(t *testing.T) {
	if _, err := NewMySQLWithConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := NewMySQLWithConfig(&MySQLConfig{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
