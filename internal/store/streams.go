package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const streamColumns = `id, user_id, name, url, filter, created_at, updated_at`

// ListOwnedStreams returns every stream configured by the user, with sinks
// attached, ordered by ID.
func (s *Store) ListOwnedStreams(ctx context.Context, userID int64) ([]Stream, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var streams []Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	rows.Close()

	sinks, err := s.sinksByStream(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range streams {
		attachSinks(&streams[i], sinks[streams[i].ID])
	}
	return streams, nil
}

// GetOwnedStream returns the stream if it exists and belongs to the user.
// A missing or foreign stream yields (nil, nil).
func (s *Store) GetOwnedStream(ctx context.Context, userID, streamID int64) (*Stream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE id = ? AND user_id = ?`, streamID, userID)
	st, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sinks, err := s.streamSinks(ctx, streamID)
	if err != nil {
		return nil, err
	}
	attachSinks(st, sinks)
	return st, nil
}

// CreateStream inserts a stream owned by st.UserID and binds st.SinkIDs.
// Binding a sink the user does not own fails with ErrNotFound.
func (s *Store) CreateStream(ctx context.Context, st *Stream) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO streams (user_id, name, url, filter, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, st.UserID, st.Name, st.URL, st.Filter, now, now)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	if err := bindSinks(ctx, tx, st.UserID, id, st.SinkIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	st.ID = id
	st.CreatedAt = unixTime(now)
	st.UpdatedAt = unixTime(now)
	return nil
}

// UpdateStream replaces the editable fields and sink bindings of an owned
// stream. Running sessions keep the configuration they were started with.
func (s *Store) UpdateStream(ctx context.Context, st *Stream) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE streams SET name = ?, url = ?, filter = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, st.Name, st.URL, st.Filter, now, st.ID, st.UserID)
	if err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stream_sinks WHERE stream_id = ?`, st.ID); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	if err := bindSinks(ctx, tx, st.UserID, st.ID, st.SinkIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}

	st.UpdatedAt = unixTime(now)
	return nil
}

// DeleteStream removes an owned stream
func (s *Store) DeleteStream(ctx context.Context, userID, streamID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM streams WHERE id = ? AND user_id = ?`, streamID, userID)
	if err != nil {
		return fmt.Errorf("delete stream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func bindSinks(ctx context.Context, tx *sql.Tx, userID, streamID int64, sinkIDs []int64) error {
	for _, sinkID := range sinkIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO stream_sinks (stream_id, sink_id)
			SELECT ?, id FROM sinks WHERE id = ? AND user_id = ?
		`, streamID, sinkID, userID)
		if err != nil {
			return fmt.Errorf("bind sink %d: %w", sinkID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM stream_sinks WHERE stream_id = ? AND sink_id = ?`,
				streamID, sinkID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("bind sink %d: %w", sinkID, err)
			}
			if exists == 0 {
				return fmt.Errorf("sink %d: %w", sinkID, ErrNotFound)
			}
		}
	}
	return nil
}

func (s *Store) streamSinks(ctx context.Context, streamID int64) ([]Sink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualifiedSinkColumns+`
		FROM sinks k JOIN stream_sinks ss ON ss.sink_id = k.id
		WHERE ss.stream_id = ? ORDER BY k.id
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("stream sinks: %w", err)
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

func (s *Store) sinksByStream(ctx context.Context, userID int64) (map[int64][]Sink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ss.stream_id, `+qualifiedSinkColumns+`
		FROM sinks k
		JOIN stream_sinks ss ON ss.sink_id = k.id
		JOIN streams st ON st.id = ss.stream_id
		WHERE st.user_id = ? ORDER BY ss.stream_id, k.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("stream sinks: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Sink)
	for rows.Next() {
		var (
			streamID int64
			k        Sink
			created  int64
		)
		if err := rows.Scan(&streamID, &k.ID, &k.UserID, &k.Kind, &k.Name, &k.Host, &k.Port,
			&k.Username, &k.Password, &k.Path, &k.URL, &created); err != nil {
			return nil, fmt.Errorf("scan sink: %w", err)
		}
		k.CreatedAt = unixTime(created)
		out[streamID] = append(out[streamID], k)
	}
	return out, rows.Err()
}

func attachSinks(st *Stream, sinks []Sink) {
	st.Sinks = sinks
	st.SinkIDs = make([]int64, 0, len(sinks))
	for _, k := range sinks {
		st.SinkIDs = append(st.SinkIDs, k.ID)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStream(row scanner) (*Stream, error) {
	var (
		st               Stream
		created, updated int64
	)
	err := row.Scan(&st.ID, &st.UserID, &st.Name, &st.URL, &st.Filter, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan stream: %w", err)
	}
	st.CreatedAt = unixTime(created)
	st.UpdatedAt = unixTime(updated)
	return &st, nil
}
