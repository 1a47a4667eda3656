package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewPool connects to Postgres, retrying within a bounded budget so the
// service survives a database that is still coming up. Exhausting the budget
// is a startup failure.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= connectAttempts {
			pool.Close()
			return nil, fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT unique_username UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS subnets (
		id BIGSERIAL PRIMARY KEY,
		cidr TEXT NOT NULL,
		netmask TEXT NOT NULL DEFAULT '',
		gateway TEXT,
		vlan_id INT,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		created_by BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT unique_cidr UNIQUE (cidr)
	)`,
	`CREATE TABLE IF NOT EXISTS ip_addresses (
		id BIGSERIAL PRIMARY KEY,
		ip TEXT NOT NULL,
		ip_numeric BIGINT NOT NULL,
		subnet_id BIGINT NOT NULL REFERENCES subnets(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'available',
		mac_address TEXT NOT NULL DEFAULT '',
		hostname TEXT NOT NULL DEFAULT '',
		device_type TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		allocated_at TIMESTAMPTZ,
		allocated_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT unique_ip UNIQUE (ip)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ip_subnet_status ON ip_addresses (subnet_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_ip_subnet_numeric ON ip_addresses (subnet_id, ip_numeric)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id BIGINT,
		old_values JSONB,
		new_values JSONB,
		request_id TEXT NOT NULL DEFAULT '',
		source_addr TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs (entity_type, entity_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_logs (user_id, created_at DESC)`,
}

// Migrate applies the schema. Statements are idempotent so it runs on every
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
