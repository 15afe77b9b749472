package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		topics TEXT[] NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init profile schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindOne(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, name, style, topics, description, last_updated
		 FROM user_profiles WHERE user_id=$1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Style, &p.Topics, &p.Description, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, name, style, topics, description, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			style = EXCLUDED.style,
			topics = EXCLUDED.topics,
			description = EXCLUDED.description,
			last_updated = EXCLUDED.last_updated`,
		p.UserID, p.Name, p.Style, p.Topics, p.Description, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
