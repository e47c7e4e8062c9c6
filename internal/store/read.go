package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type streamInfo struct {
	first    int64
	last     int64
	lastHash protocol.Bytes
}

func readStreamInfo(ctx context.Context, q queryer, id streamid.ID) (*streamInfo, error) {
	var info streamInfo
	var hash []byte
	err := q.QueryRowContext(ctx, `
		SELECT first_num, last_num, last_hash FROM streams WHERE stream_id = ?
	`, id.String()).Scan(&info.first, &info.last, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, miniblock.StreamNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", id, err)
	}
	info.lastHash = hash
	return &info, nil
}

// GetMiniblocks returns retained miniblocks in [from, to), ordered by num.
func (s *Store) GetMiniblocks(ctx context.Context, id streamid.ID, from, to int64) (*miniblock.Range, error) {
	info, err := readStreamInfo(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	lo, hi, terminus, err := miniblock.Bounds(info.first, info.last, from, to)
	if err != nil {
		return nil, err
	}
	out := &miniblock.Range{Miniblocks: []*protocol.Miniblock{}, FromInclusive: lo, Terminus: terminus}
	if lo >= hi {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM miniblocks
		WHERE stream_id = ? AND num >= ? AND num < ?
		ORDER BY num ASC
	`, id.String(), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query miniblocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan miniblock: %w", err)
		}
		mb, err := unmarshalMiniblock(data)
		if err != nil {
			return nil, err
		}
		out.Miniblocks = append(out.Miniblocks, mb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate miniblocks: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the newest retained snapshot miniblock.
func (s *Store) LatestSnapshot(ctx context.Context, id streamid.ID) (*protocol.Miniblock, error) {
	if _, err := readStreamInfo(ctx, s.db, id); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM miniblocks
		WHERE stream_id = ? AND is_snapshot = 1
		ORDER BY num DESC
		LIMIT 1
	`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, protocol.NewError(protocol.CodeInternal, "no snapshot miniblock retained").WithStream(id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return unmarshalMiniblock(data)
}

// LastMiniblockNum returns the tail miniblock number.
func (s *Store) LastMiniblockNum(ctx context.Context, id streamid.ID) (int64, error) {
	info, err := readStreamInfo(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	return info.last, nil
}

// StreamExists reports whether id has been created.
func (s *Store) StreamExists(ctx context.Context, id streamid.ID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM streams WHERE stream_id = ?
	`, id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("stream exists: %w", err)
	}
	return count > 0, nil
}

// ListStreams returns all stream ids in ascending order.
func (s *Store) ListStreams(ctx context.Context) ([]streamid.ID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_id FROM streams ORDER BY stream_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	ids := []streamid.ID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan stream id: %w", err)
		}
		id, err := streamid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("list streams: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return ids, nil
}
