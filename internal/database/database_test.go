package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFromEnv(t *testing.T) {
	cfg := &Config{FileName: filepath.Join(t.TempDir(), "cpi.db"), Timeout: time.Second}
	db, err := NewFromEnv(context.Background(), cfg)
	if err != nil {
		t.Fatalf("calling NewFromEnv, unexpected error: %v", err)
	}
	if db.DB.Path() != cfg.FileName {
		t.Errorf("calling NewFromEnv, path got: %v, expected: %v", db.DB.Path(), cfg.FileName)
	}
	if err := db.Close(context.Background()); err != nil {
		t.Errorf("calling Close, unexpected error: %v", err)
	}
}

func TestNewFromEnv_BadPath(t *testing.T) {
	cfg := &Config{FileName: filepath.Join(t.TempDir(), "missing", "cpi.db"), Timeout: time.Second}
	if _, err := NewFromEnv(context.Background(), cfg); err == nil {
		t.Errorf("calling NewFromEnv on a missing directory, an error is expected")
	}
}
