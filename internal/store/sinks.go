package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	sinkColumns          = `id, user_id, kind, name, host, port, username, password, path, url, created_at`
	qualifiedSinkColumns = `k.id, k.user_id, k.kind, k.name, k.host, k.port, k.username, k.password, k.path, k.url, k.created_at`
)

// CreateSink inserts a sink owned by k.UserID
func (s *Store) CreateSink(ctx context.Context, k *Sink) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sinks (user_id, kind, name, host, port, username, password, path, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.UserID, k.Kind, k.Name, k.Host, k.Port, k.Username, k.Password, k.Path, k.URL, now)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	k.ID = id
	k.CreatedAt = unixTime(now)
	return nil
}

// GetSink returns an owned sink
func (s *Store) GetSink(ctx context.Context, userID, sinkID int64) (*Sink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sinkColumns+` FROM sinks WHERE id = ? AND user_id = ?`, sinkID, userID)
	k, err := scanSink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return k, err
}

// ListSinks returns every sink owned by the user
func (s *Store) ListSinks(ctx context.Context, userID int64) ([]Sink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sinkColumns+` FROM sinks WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	defer rows.Close()

	var sinks []Sink
	for rows.Next() {
		k, err := scanSink(rows)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, *k)
	}
	return sinks, rows.Err()
}

// DeleteSink removes an owned sink and unbinds it from every stream
func (s *Store) DeleteSink(ctx context.Context, userID, sinkID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sinks WHERE id = ? AND user_id = ?`, sinkID, userID)
	if err != nil {
		return fmt.Errorf("delete sink: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSink(row scanner) (*Sink, error) {
	var (
		k       Sink
		created int64
	)
	err := row.Scan(&k.ID, &k.UserID, &k.Kind, &k.Name, &k.Host, &k.Port,
		&k.Username, &k.Password, &k.Path, &k.URL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan sink: %w", err)
	}
	k.CreatedAt = unixTime(created)
	return &k, nil
}
