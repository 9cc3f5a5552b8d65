package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_keys (
	device_address TEXT PRIMARY KEY,
	public_key     TEXT        NOT NULL,
	key_type       TEXT        NOT NULL,
	fingerprint    TEXT        NOT NULL,
	registered_at  TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

// Postgres is a Registry backed by a device_keys table.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Registry = (*Postgres)(nil)

// NewPostgres connects to databaseURL, verifies the connection and ensures the
// device_keys table exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL %s: %w", MaskPassword(databaseURL), err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", MaskPassword(databaseURL), err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure device_keys schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Register(ctx context.Context, deviceAddress, publicKeyPEM string) (Binding, bool, error) {
	b, err := newBinding(deviceAddress, publicKeyPEM, time.Now().UTC())
	if err != nil {
		return Binding{}, false, err
	}

	// xmax is zero only for freshly inserted rows.
	const q = `
		INSERT INTO device_keys (device_address, public_key, key_type, fingerprint, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (device_address) DO UPDATE
		SET public_key = EXCLUDED.public_key,
		    key_type = EXCLUDED.key_type,
		    fingerprint = EXCLUDED.fingerprint,
		    updated_at = EXCLUDED.updated_at
		RETURNING registered_at, updated_at, (xmax = 0) AS inserted
	`
	var created bool
	err = p.pool.QueryRow(ctx, q, b.DeviceAddress, b.PublicKeyPEM, b.KeyType, b.Fingerprint, b.UpdatedAt).
		Scan(&b.RegisteredAt, &b.UpdatedAt, &created)
	if err != nil {
		return Binding{}, false, fmt.Errorf("upsert device key: %w", err)
	}
	return b, created, nil
}

func (p *Postgres) Lookup(ctx context.Context, deviceAddress string) (Binding, error) {
	const q = `
		SELECT device_address, public_key, key_type, fingerprint, registered_at, updated_at
		FROM device_keys
		WHERE device_address = $1
	`
	var b Binding
	err := p.pool.QueryRow(ctx, q, NormalizeAddress(deviceAddress)).Scan(
		&b.DeviceAddress,
		&b.PublicKeyPEM,
		&b.KeyType,
		&b.Fingerprint,
		&b.RegisteredAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Binding{}, ErrNotFound
	}
	if err != nil {
		return Binding{}, fmt.Errorf("query device key: %w", err)
	}
	return b, nil
}

// MaskPassword hides the password of a connection URL for logging.
func MaskPassword(url string) string {
	if url == "" {
		return "<empty>"
	}
	start := 0
	for i := 0; i < len(url); i++ {
		if url[i] == ':' && i > 0 && url[i-1] != '/' {
			start = i + 1
		}
		if url[i] == '@' && start > 0 {
			return url[:start] + "***" + url[i:]
		}
	}
	return url
}
