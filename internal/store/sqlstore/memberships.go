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

type membershipRepo struct{ s *Store }

type membershipRow struct {
	Id           t.UserId             `db:"id"`
	RoomId       t.RoomId             `db:"room_id"`
	UserId       t.UserId             `db:"user_id"`
	Role         t.MembershipRole     `db:"role"`
	JoinedAt     time.Time            `db:"joined_at"`
	LastActivity sql.NullTime         `db:"last_activity"`
	Status       t.MembershipStatus   `db:"status"`
}

func (r membershipRow) toMembership() *t.Membership {
	m := &t.Membership{
		Id: r.Id, RoomId: r.RoomId, UserId: r.UserId, Role: r.Role,
		JoinedAt: r.JoinedAt, Status: r.Status,
	}
	if r.LastActivity.Valid {
		m.LastActivity = &r.LastActivity.Time
	}
	return m
}

const membershipSelect = `SELECT id, room_id, user_id, role, joined_at, last_activity, status FROM memberships`

func (mr *membershipRepo) Get(ctx context.Context, roomID t.RoomId, userID t.UserId) (*t.Membership, error) {
	var row membershipRow
	err := sqlx.GetContext(ctx, mr.s.db, &row, membershipSelect+" WHERE room_id = ? AND user_id = ?", roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toMembership(), nil
}

func (mr *membershipRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId) (*t.Membership, error) {
	var row membershipRow
	err := sqlx.GetContext(ctx, mr.s.ext(tx), &row, membershipSelect+" WHERE room_id = ? AND user_id = ? FOR UPDATE", roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toMembership(), nil
}

func (mr *membershipRepo) ListByRoom(ctx context.Context, roomID t.RoomId) ([]t.Membership, error) {
	var rows []membershipRow
	if err := sqlx.SelectContext(ctx, mr.s.db, &rows, membershipSelect+" WHERE room_id = ?", roomID); err != nil {
		return nil, t.QueryError(err.Error())
	}
	out := make([]t.Membership, len(rows))
	for i, r := range rows {
		out[i] = *r.toMembership()
	}
	return out, nil
}

func (mr *membershipRepo) ListByUser(ctx context.Context, userID t.UserId) ([]t.Membership, error) {
	var rows []membershipRow
	if err := sqlx.SelectContext(ctx, mr.s.db, &rows, membershipSelect+" WHERE user_id = ?", userID); err != nil {
		return nil, t.QueryError(err.Error())
	}
	out := make([]t.Membership, len(rows))
	for i, r := range rows {
		out[i] = *r.toMembership()
	}
	return out, nil
}

func (mr *membershipRepo) Create(ctx context.Context, tx adapter.Tx, m *t.Membership) error {
	_, err := mr.s.ext(tx).ExecContext(ctx, `
		INSERT INTO memberships (id, room_id, user_id, role, joined_at, last_activity, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Id, m.RoomId, m.UserId, m.Role, m.JoinedAt, m.LastActivity, m.Status)
	if isDuplicateKey(err) {
		return t.AlreadyExists("membership", m.UserId.String())
	}
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (mr *membershipRepo) Update(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, roomID, userID)
	res, err := mr.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE memberships SET %s WHERE room_id = ? AND user_id = ?", set), args...)
	return checkAffected(res, err, "membership", userID.String())
}

func (mr *membershipRepo) Delete(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId) error {
	res, err := mr.s.ext(tx).ExecContext(ctx, "DELETE FROM memberships WHERE room_id = ? AND user_id = ?", roomID, userID)
	return checkAffected(res, err, "membership", userID.String())
}

func (mr *membershipRepo) CountActiveByRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, mr.s.ext(tx), &n, "SELECT COUNT(*) FROM memberships WHERE room_id = ? AND status = ? FOR UPDATE", roomID, t.MembershipActive)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	return n, nil
}

func (mr *membershipRepo) DeleteAllForRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	res, err := mr.s.ext(tx).ExecContext(ctx, "DELETE FROM memberships WHERE room_id = ?", roomID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (mr *membershipRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	res, err := mr.s.ext(tx).ExecContext(ctx, "DELETE FROM memberships WHERE user_id = ?", userID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
