package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// CreateStream inserts the stream row and its genesis miniblock.
func (s *Store) CreateStream(ctx context.Context, id streamid.ID, genesis *protocol.Miniblock) error {
	if err := miniblock.CheckGenesis(id, genesis); err != nil {
		return err
	}
	data, err := marshalMiniblock(genesis)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO streams (stream_id, first_num, last_num, last_hash)
			VALUES (?, 0, 0, ?)
			ON CONFLICT(stream_id) DO NOTHING
		`, id.String(), []byte(genesis.Hash))
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("create stream: rows affected: %w", err)
		} else if n == 0 {
			return protocol.NewError(protocol.CodeAlreadyExists, "stream exists").WithStream(id.String())
		}
		return insertMiniblock(ctx, tx, id, genesis, data)
	})
}

// WriteMiniblocks appends miniblocks in one transaction. Miniblocks at or
// below the tail are skipped; a gap or a broken hash link fails the whole
// batch.
func (s *Store) WriteMiniblocks(ctx context.Context, id streamid.ID, mbs []*protocol.Miniblock) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		info, err := readStreamInfo(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, mb := range mbs {
			skip, err := miniblock.CheckAppend(id, info.last, info.lastHash, mb)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
			data, err := marshalMiniblock(mb)
			if err != nil {
				return fmt.Errorf("write miniblocks: %w", err)
			}
			if err := insertMiniblock(ctx, tx, id, mb, data); err != nil {
				return err
			}
			info.last, info.lastHash = mb.Num(), mb.Hash
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE streams SET last_num = ?, last_hash = ? WHERE stream_id = ?
		`, info.last, []byte(info.lastHash), id.String())
		if err != nil {
			return fmt.Errorf("write miniblocks: update tail: %w", err)
		}
		return nil
	})
}

func insertMiniblock(ctx context.Context, tx *sql.Tx, id streamid.ID, mb *protocol.Miniblock, data string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO miniblocks (stream_id, num, hash, is_snapshot, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_id, num) DO NOTHING
	`, id.String(), mb.Num(), []byte(mb.Hash), boolInt(mb.IsSnapshot()), data)
	if err != nil {
		return fmt.Errorf("insert miniblock %d: %w", mb.Num(), err)
	}
	return nil
}

// Trim deletes miniblocks below the newest snapshot miniblock at or below
// trimTo and returns the first retained number.
func (s *Store) Trim(ctx context.Context, id streamid.ID, trimTo int64) (int64, error) {
	var point int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		info, err := readStreamInfo(ctx, tx, id)
		if err != nil {
			return err
		}
		if !miniblock.Trimmable(id) {
			return miniblock.NotTrimmableError(id)
		}
		point = info.first
		if trimTo <= info.first {
			return nil
		}

		var snap sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT MAX(num) FROM miniblocks
			WHERE stream_id = ? AND is_snapshot = 1 AND num <= ?
		`, id.String(), trimTo).Scan(&snap)
		if err != nil {
			return fmt.Errorf("trim: find snapshot: %w", err)
		}
		if !snap.Valid || snap.Int64 <= info.first {
			return nil
		}
		point = snap.Int64

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM miniblocks WHERE stream_id = ? AND num < ?
		`, id.String(), point); err != nil {
			return fmt.Errorf("trim: delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE streams SET first_num = ? WHERE stream_id = ?
		`, point, id.String()); err != nil {
			return fmt.Errorf("trim: update range: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return point, nil
}
