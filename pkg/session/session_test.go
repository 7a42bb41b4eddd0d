package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"medidenoise/internal/logger"
	"medidenoise/internal/models"
	"medidenoise/pkg/config"
)

// createTestImage builds a small image with distinct values
func createTestImage(seed float64) *models.CanonicalImage {
	img := models.NewCanonicalImage(4, 3, 3)
	for i := range img.Pix {
		img.Pix[i] = math.Mod(seed+float64(i)/255.0, 1)
	}
	return img
}

func assertSameImage(t *testing.T, got, want *models.CanonicalImage) {
	t.Helper()
	if !got.SameShape(want) {
		t.Fatalf("Shape %dx%dx%d, want %dx%dx%d", got.Width, got.Height, got.Channels, want.Width, want.Height, want.Channels)
	}
	for i := range want.Pix {
		if got.Pix[i] != want.Pix[i] {
			t.Fatalf("Value %d = %v, want %v", i, got.Pix[i], want.Pix[i])
		}
	}
}

func TestSessionIDs(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("Expected distinct session ids")
	}
	if !ValidID(a) {
		t.Errorf("Expected %q to be valid", a)
	}
	for _, bad := range []string{"", "abc", "../../etc/passwd"} {
		if ValidID(bad) {
			t.Errorf("Expected %q to be invalid", bad)
		}
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	img := createTestImage(0.1)
	if err := s.Put(ctx, "a", img); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// later changes to the caller's image must not leak into the slot
	img.Pix[0] = 0.999

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertSameImage(t, got, createTestImage(0.1))

	got.Pix[1] = 0.5
	again, _ := s.Get(ctx, "a")
	assertSameImage(t, again, createTestImage(0.1))
}

// TestMemoryStoreIsolation verifies one session cannot replace another's original
func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	s.Put(ctx, "user-a", createTestImage(0.1))
	s.Put(ctx, "user-b", createTestImage(0.7))

	a, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertSameImage(t, a, createTestImage(0.1))

	// a new upload in the same session replaces the slot
	s.Put(ctx, "user-a", createTestImage(0.3))
	a, _ = s.Get(ctx, "user-a")
	assertSameImage(t, a, createTestImage(0.3))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	s.Put(ctx, "old", createTestImage(0.2))
	now = now.Add(30 * time.Second)
	s.Put(ctx, "new", createTestImage(0.4))

	now = now.Add(45 * time.Second)
	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired session to be gone, got %v", err)
	}
	if _, err := s.Get(ctx, "new"); err != nil {
		t.Errorf("Expected live session, got %v", err)
	}

	if s.Len() != 2 {
		t.Fatalf("Expected expired entry to linger until sweep, got %d entries", s.Len())
	}
	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 || s.Len() != 1 {
		t.Errorf("Expected 1 removed and 1 left, got %d removed and %d left", removed, s.Len())
	}
}

func TestMemoryStoreMaxEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore(time.Hour, WithMaxEntries(2))
	s.now = func() time.Time { return now }

	for _, id := range []string{"first", "second"} {
		s.Put(ctx, id, createTestImage(0.1))
		now = now.Add(time.Second)
	}

	// rewriting a live id never evicts
	s.Put(ctx, "first", createTestImage(0.5))
	now = now.Add(time.Second)
	if s.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", s.Len())
	}

	// "second" is now the oldest write
	s.Put(ctx, "third", createTestImage(0.7))
	if s.Len() != 2 {
		t.Errorf("Expected the cap to hold at 2, got %d", s.Len())
	}
	if _, err := s.Get(ctx, "second"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected oldest session to be evicted, got %v", err)
	}
	got, err := s.Get(ctx, "first")
	if err != nil {
		t.Fatalf("Expected rewritten session to survive: %v", err)
	}
	assertSameImage(t, got, createTestImage(0.5))
	if _, err := s.Get(ctx, "third"); err != nil {
		t.Errorf("Expected new session, got %v", err)
	}

	unbounded := NewMemoryStore(time.Hour)
	for i := 0; i < 10; i++ {
		unbounded.Put(ctx, fmt.Sprintf("s%d", i), createTestImage(0.1))
	}
	if unbounded.Len() != 10 {
		t.Errorf("Expected no cap by default, got %d entries", unbounded.Len())
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			id := fmt.Sprintf("session-%d", w)
			for i := 0; i < 50; i++ {
				s.Put(ctx, id, createTestImage(float64(w)/10))
				if _, err := s.Get(ctx, id); err != nil {
					t.Errorf("Get %s failed: %v", id, err)
					return
				}
			}
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-done
	}

	if s.Len() != 8 {
		t.Errorf("Expected 8 sessions, got %d", s.Len())
	}
}

func TestRunJanitor(t *testing.T) {
	s := NewMemoryStore(time.Nanosecond)
	s.Put(context.Background(), "a", createTestImage(0.1))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		RunJanitor(ctx, s, 5*time.Millisecond, logger.Nop())
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped

	if s.Len() != 0 {
		t.Errorf("Expected janitor to remove expired sessions, %d left", s.Len())
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("Expected memory store by default, got %T", store)
	}

	cfg.Session.Backend = "redis"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestPixelEncoding(t *testing.T) {
	pix := []float64{0, 1, 1.0 / 255.0, -3.5, math.MaxFloat64}
	back, err := decodePixels(encodePixels(pix), len(pix))
	if err != nil {
		t.Fatalf("decodePixels failed: %v", err)
	}
	for i := range pix {
		if back[i] != pix[i] {
			t.Errorf("Value %d = %v, want %v", i, back[i], pix[i])
		}
	}

	if _, err := decodePixels(make([]byte, 7), 1); err == nil {
		t.Error("Expected error for truncated blob")
	}
}

// TestPostgresStoreIntegration runs the store against a real Postgres container.
// It requires Docker to be running.
func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("medidenoise_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	defer func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := NewPostgresStore(ctx, connStr, time.Hour)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	id := NewID()
	if err := s.Put(ctx, id, createTestImage(0.1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertSameImage(t, got, createTestImage(0.1))

	// upsert replaces the slot
	if err := s.Put(ctx, id, createTestImage(0.6)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _ = s.Get(ctx, id)
	assertSameImage(t, got, createTestImage(0.6))

	// a store with a tiny ttl sees nothing and sweeps the row
	expired, err := NewPostgresStore(ctx, connStr, time.Nanosecond)
	if err != nil {
		t.Fatalf("Failed to open second store: %v", err)
	}
	defer expired.Close()

	if _, err := expired.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired row to be invisible, got %v", err)
	}
	removed, err := expired.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 row swept, got %d", removed)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
