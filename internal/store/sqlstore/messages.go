package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
)

type messageRepo struct{ s *Store }

type messageRow struct {
	Id        t.MessageId    `db:"id"`
	RoomId    sql.NullString `db:"room_id"`
	DMPair    sql.NullString `db:"dm_pair"`
	Author    t.UserId       `db:"author"`
	Content   string         `db:"content"`
	CreatedAt time.Time      `db:"created_at"`
	EditedAt  sql.NullTime   `db:"edited_at"`
	Deleted   bool           `db:"deleted"`
}

func (r messageRow) toMessage() *t.Message {
	m := &t.Message{Id: r.Id, Author: r.Author, Content: r.Content, CreatedAt: r.CreatedAt, Deleted: r.Deleted}
	if r.RoomId.Valid {
		rid, _ := t.ParseRoomId(r.RoomId.String)
		m.RoomId = &rid
	}
	if r.DMPair.Valid {
		m.DMPair = &r.DMPair.String
	}
	if r.EditedAt.Valid {
		m.EditedAt = &r.EditedAt.Time
	}
	return m
}

const messageSelect = `SELECT id, room_id, dm_pair, author, content, created_at, edited_at, deleted FROM messages`

func (mr *messageRepo) Get(ctx context.Context, id t.MessageId) (*t.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, mr.s.db, &row, messageSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toMessage(), nil
}

func (mr *messageRepo) ListByRoom(ctx context.Context, roomID t.RoomId, limit int, before time.Time) ([]t.Message, error) {
	var rows []messageRow
	err := sqlx.SelectContext(ctx, mr.s.db, &rows,
		messageSelect+" WHERE room_id = ? AND created_at < ? ORDER BY created_at DESC LIMIT ?", roomID, before, limit)
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	out := make([]t.Message, len(rows))
	for i, r := range rows {
		out[i] = *r.toMessage()
	}
	return out, nil
}

func (mr *messageRepo) Create(ctx context.Context, tx adapter.Tx, m *t.Message) error {
	if m.Id.IsZero() {
		m.Id = t.NewMessageId()
	}
	_, err := mr.s.ext(tx).ExecContext(ctx, `
		INSERT INTO messages (id, room_id, dm_pair, author, content, created_at, edited_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Id, m.RoomId, m.DMPair, m.Author, m.Content, m.CreatedAt, m.EditedAt, m.Deleted)
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (mr *messageRepo) Update(ctx context.Context, tx adapter.Tx, id t.MessageId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, id)
	res, err := mr.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE messages SET %s, edited_at = NOW(3) WHERE id = ?", set), args...)
	return checkAffected(res, err, "message", id.String())
}

func (mr *messageRepo) SoftDelete(ctx context.Context, tx adapter.Tx, id t.MessageId) error {
	res, err := mr.s.ext(tx).ExecContext(ctx, "UPDATE messages SET deleted = TRUE WHERE id = ?", id)
	return checkAffected(res, err, "message", id.String())
}

func (mr *messageRepo) DeleteAllByRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	res, err := mr.s.ext(tx).ExecContext(ctx, "DELETE FROM messages WHERE room_id = ?", roomID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (mr *messageRepo) DeleteAllByAuthor(ctx context.Context, tx adapter.Tx, author t.UserId) (int, error) {
	res, err := mr.s.ext(tx).ExecContext(ctx, "DELETE FROM messages WHERE author = ?", author)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
