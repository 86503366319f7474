package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
)

type sessionRepo struct{ s *Store }

type sessionRow struct {
	Id           t.SessionId    `db:"id"`
	UserId       t.UserId       `db:"user_id"`
	Protocol     t.Protocol     `db:"protocol"`
	Device       sql.NullString `db:"device"`
	CreatedAt    time.Time      `db:"created_at"`
	ExpiresAt    time.Time      `db:"expires_at"`
	LastActivity time.Time      `db:"last_activity"`
	IsActive     bool           `db:"is_active"`
	Metadata     []byte         `db:"metadata"`
}

func (r sessionRow) toSession() *t.Session {
	s := &t.Session{
		Id: r.Id, UserId: r.UserId, Protocol: r.Protocol, CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt, LastActivity: r.LastActivity, IsActive: r.IsActive,
	}
	if r.Device.Valid {
		s.Device = &r.Device.String
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &s.Metadata)
	}
	return s
}

const sessionSelect = `SELECT id, user_id, protocol, device, created_at, expires_at, last_activity, is_active, metadata FROM sessions`

func (sr *sessionRepo) Get(ctx context.Context, id t.SessionId) (*t.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, sr.s.db, &row, sessionSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toSession(), nil
}

func (sr *sessionRepo) Create(ctx context.Context, tx adapter.Tx, s *t.Session) error {
	meta, _ := json.Marshal(s.Metadata)
	_, err := sr.s.ext(tx).ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, protocol, device, created_at, expires_at, last_activity, is_active, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Id, s.UserId, s.Protocol, s.Device, s.CreatedAt, s.ExpiresAt, s.LastActivity, s.IsActive, meta)
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (sr *sessionRepo) Update(ctx context.Context, tx adapter.Tx, id t.SessionId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, id)
	res, err := sr.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", set), args...)
	return checkAffected(res, err, "session", id.String())
}

func (sr *sessionRepo) Deactivate(ctx context.Context, tx adapter.Tx, id t.SessionId) error {
	res, err := sr.s.ext(tx).ExecContext(ctx, "UPDATE sessions SET is_active = FALSE WHERE id = ?", id)
	return checkAffected(res, err, "session", id.String())
}

func (sr *sessionRepo) DeleteAllByUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	res, err := sr.s.ext(tx).ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
