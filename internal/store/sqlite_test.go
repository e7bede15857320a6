package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	state := map[string]string{
		"user:mood":                        "Neutral",
		"user_preference_temperature_unit": "Celsius",
	}
	if _, err := s.Create(ctx, "weather_bot", "alice", "alice", state); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, "weather_bot", "alice", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored entry")
	}
	if got.State["user:mood"] != "Neutral" || got.State["user_preference_temperature_unit"] != "Celsius" {
		t.Errorf("unexpected state: %v", got.State)
	}

	if err := s.Delete(ctx, "weather_bot", "alice", "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.Get(ctx, "weather_bot", "alice", "alice")
	if err != nil || got != nil {
		t.Errorf("expected (nil, nil) after delete, got %+v, %v", got, err)
	}
}

func TestSQLiteStore_CreateDuplicate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "weather_bot", "alice", "alice", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, "weather_bot", "alice", "alice", nil); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestSQLiteStore_DeleteAbsentIsNoop(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Delete(context.Background(), "weather_bot", "nobody", "nobody"); err != nil {
		t.Errorf("expected no-op delete, got %v", err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := s.Create(ctx, "weather_bot", "alice", "alice", map[string]string{"user:mood": "Happy"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(ctx, "weather_bot", "alice", "alice")
	if err != nil || got == nil {
		t.Fatalf("expected stored entry, got %+v, %v", got, err)
	}
	if got.State["user:mood"] != "Happy" {
		t.Errorf("unexpected state: %v", got.State)
	}
}
