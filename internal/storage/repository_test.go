package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"adcarbon/internal/config"
)

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Get on nil store should return ErrNotConfigured, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("{}"), time.Minute); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Set on nil store should return ErrNotConfigured, got %v", err)
	}
	if _, err := s.Purge(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Purge on nil store should return ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock on nil store should return ErrNotConfigured, got %v", err)
	}

	s.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("empty dsn should fail")
	}
}

func TestNewPoolRejectsMalformedDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("malformed dsn should fail")
	}
}
