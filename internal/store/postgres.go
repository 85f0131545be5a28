package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Postgres 以 PostgreSQL 保存動作紀錄與快照
//
// 表結構由 internal/migrations 建立。
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres 使用既有的連接池
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

func toInt8(seq uint64) (int64, error) {
	if seq > math.MaxInt64 {
		return 0, fmt.Errorf("seq %d out of range", seq)
	}
	return int64(seq), nil
}

// AppendAction 實作 Store
func (p *Postgres) AppendAction(ctx context.Context, rec ActionRecord) error {
	seq, err := toInt8(rec.Seq)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	hash := Checksum(rec.Action)

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO room_actions (room_id, seq, action, action_hash, diff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, seq) DO NOTHING`,
		rec.RoomID, seq, rec.Action, hash, rec.Diff, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// 已有同序號紀錄：內容相同視為重送成功
	var existing string
	err = p.pool.QueryRow(ctx,
		`SELECT action_hash FROM room_actions WHERE room_id = $1 AND seq = $2`,
		rec.RoomID, seq).Scan(&existing)
	if err != nil {
		return fmt.Errorf("read existing action: %w", err)
	}
	if existing == hash {
		return nil
	}

	p.logger.Error("sequence conflict",
		"room_id", rec.RoomID,
		"seq", rec.Seq)
	return errors.ErrSequenceConflict.WithDetails(fmt.Sprintf("room %s seq %d", rec.RoomID, rec.Seq))
}

// SaveSnapshot 實作 Store
func (p *Postgres) SaveSnapshot(ctx context.Context, snap Snapshot, keep int) error {
	seq, err := toInt8(snap.Seq)
	if err != nil {
		return err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO room_snapshots (room_id, seq, state, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, seq) DO UPDATE
		SET state = EXCLUDED.state, checksum = EXCLUDED.checksum, created_at = EXCLUDED.created_at`,
		snap.RoomID, seq, snap.State, snap.Checksum, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if keep > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM room_snapshots
			WHERE room_id = $1 AND seq NOT IN (
				SELECT seq FROM room_snapshots WHERE room_id = $1 ORDER BY seq DESC LIMIT $2
			)`,
			snap.RoomID, keep)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadSnapshots 實作 Store
func (p *Postgres) LoadSnapshots(ctx context.Context, roomID string, n int) ([]Snapshot, error) {
	if n <= 0 {
		n = math.MaxInt32
	}

	rows, err := p.pool.Query(ctx, `
		SELECT room_id, seq, state, checksum, created_at
		FROM room_snapshots
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2`,
		roomID, n)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s   Snapshot
			seq int64
		)
		if err := rows.Scan(&s.RoomID, &seq, &s.State, &s.Checksum, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Seq = uint64(seq) // #nosec G115 - CHECK (seq >= 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadActions 實作 Store
func (p *Postgres) LoadActions(ctx context.Context, roomID string, afterSeq uint64) ([]ActionRecord, error) {
	after, err := toInt8(afterSeq)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT room_id, seq, action, diff, created_at
		FROM room_actions
		WHERE room_id = $1 AND seq > $2
		ORDER BY seq`,
		roomID, after)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			r   ActionRecord
			seq int64
		)
		if err := rows.Scan(&r.RoomID, &seq, &r.Action, &r.Diff, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		r.Seq = uint64(seq) // #nosec G115 - CHECK (seq > 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRooms 實作 Store
func (p *Postgres) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT room_id FROM room_snapshots
		UNION
		SELECT room_id FROM room_actions
		ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, id)
	}
	return rooms, rows.Err()
}

// Ping 檢查資料庫連線
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close 連接池由呼叫端建立，也由呼叫端關閉
func (p *Postgres) Close() error { return nil }
