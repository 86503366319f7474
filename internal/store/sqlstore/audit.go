package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
)

type auditRepo struct{ s *Store }

type auditRow struct {
	Id        string    `db:"id"`
	ActorId   t.UserId  `db:"actor_id"`
	Action    string    `db:"action"`
	Target    string    `db:"target"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

func (r auditRow) toEntry() t.AuditEntry {
	return t.AuditEntry{Id: r.Id, ActorId: r.ActorId, Action: r.Action, Target: r.Target, Detail: r.Detail, CreatedAt: r.CreatedAt}
}

// ListRecent returns the audit log in reverse-chronological order. There is
// no access-control layer here by design: spec leaves audit-log retention
// and reader access undefined (see DESIGN.md Open Question), so this is
// deliberately just a raw, unauthenticated repository method; callers
// outside the core are responsible for gating who may invoke it.
func (ar *auditRepo) ListRecent(ctx context.Context, limit int) ([]t.AuditEntry, error) {
	var rows []auditRow
	err := sqlx.SelectContext(ctx, ar.s.db, &rows,
		"SELECT id, actor_id, action, target, detail, created_at FROM audit_log ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	out := make([]t.AuditEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toEntry()
	}
	return out, nil
}

func (ar *auditRepo) Append(ctx context.Context, tx adapter.Tx, entry *t.AuditEntry) error {
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	_, err := ar.s.ext(tx).ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Id, entry.ActorId, entry.Action, entry.Target, entry.Detail, entry.CreatedAt)
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (ar *auditRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	res, err := ar.s.ext(tx).ExecContext(ctx, "DELETE FROM audit_log WHERE actor_id = ?", userID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
