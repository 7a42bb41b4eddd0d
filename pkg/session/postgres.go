package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medidenoise/internal/models"
)

// PostgresStore keeps sessions in a PostgreSQL table so several server
// replicas can share them
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore connects to the database and ensures the schema exists
func NewPostgresStore(ctx context.Context, connString string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

// initSchema creates the sessions table if it doesn't exist (Auto-Migration)
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			width INT NOT NULL,
			height INT NOT NULL,
			channels INT NOT NULL,
			pixels BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Put upserts the image under id and resets its timestamp
func (s *PostgresStore) Put(ctx context.Context, id string, img *models.CanonicalImage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, width, height, channels, pixels, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			channels = EXCLUDED.channels,
			pixels = EXCLUDED.pixels,
			updated_at = EXCLUDED.updated_at
	`, id, img.Width, img.Height, img.Channels, encodePixels(img.Pix), time.Now())
	if err != nil {
		return fmt.Errorf("store session %s: %w", id, err)
	}
	return nil
}

// Get loads the image stored under id. Rows older than the ttl are treated
// as missing even before Sweep deletes them.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.CanonicalImage, error) {
	var (
		width, height, channels int
		pixels                  []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT width, height, channels, pixels FROM sessions
		WHERE id = $1 AND updated_at > $2
	`, id, time.Now().Add(-s.ttl)).Scan(&width, &height, &channels, &pixels)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	pix, err := decodePixels(pixels, width*height*channels)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &models.CanonicalImage{Pix: pix, Width: width, Height: height, Channels: channels}, nil
}

// Sweep deletes rows older than the ttl
func (s *PostgresStore) Sweep(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE updated_at <= $1", time.Now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// encodePixels packs values as little-endian float64
func encodePixels(pix []float64) []byte {
	buf := make([]byte, len(pix)*8)
	for i, v := range pix {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodePixels(buf []byte, n int) ([]float64, error) {
	if len(buf) != n*8 {
		return nil, fmt.Errorf("pixel blob has %d bytes, expected %d", len(buf), n*8)
	}
	pix := make([]float64, n)
	for i := range pix {
		pix[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return pix, nil
}
