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

type invitationRepo struct{ s *Store }

type invitationRow struct {
	Id              t.InvitationId     `db:"id"`
	RoomId          t.RoomId           `db:"room_id"`
	SenderUserId    t.UserId           `db:"sender_user_id"`
	RecipientUserId t.UserId           `db:"recipient_user_id"`
	Status          t.InvitationStatus `db:"status"`
	CreatedAt       time.Time          `db:"created_at"`
	ExpiresAt       time.Time          `db:"expires_at"`
}

func (r invitationRow) toInvitation() *t.Invitation {
	return &t.Invitation{
		Id: r.Id, RoomId: r.RoomId, SenderUserId: r.SenderUserId, RecipientUserId: r.RecipientUserId,
		Status: r.Status, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt,
	}
}

const invitationSelect = `SELECT id, room_id, sender_user_id, recipient_user_id, status, created_at, expires_at FROM invitations`

func (ir *invitationRepo) Get(ctx context.Context, id t.InvitationId) (*t.Invitation, error) {
	var row invitationRow
	err := sqlx.GetContext(ctx, ir.s.db, &row, invitationSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toInvitation(), nil
}

func (ir *invitationRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, id t.InvitationId) (*t.Invitation, error) {
	var row invitationRow
	err := sqlx.GetContext(ctx, ir.s.ext(tx), &row, invitationSelect+" WHERE id = ? FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toInvitation(), nil
}

func (ir *invitationRepo) ListPendingForUser(ctx context.Context, userID t.UserId) ([]t.Invitation, error) {
	var rows []invitationRow
	err := sqlx.SelectContext(ctx, ir.s.db, &rows,
		invitationSelect+" WHERE recipient_user_id = ? AND status = ? AND expires_at > ?", userID, t.InvitationPending, time.Now())
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	out := make([]t.Invitation, len(rows))
	for i, r := range rows {
		out[i] = *r.toInvitation()
	}
	return out, nil
}

func (ir *invitationRepo) Create(ctx context.Context, tx adapter.Tx, inv *t.Invitation) error {
	_, err := ir.s.ext(tx).ExecContext(ctx, `
		INSERT INTO invitations (id, room_id, sender_user_id, recipient_user_id, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.Id, inv.RoomId, inv.SenderUserId, inv.RecipientUserId, inv.Status, inv.CreatedAt, inv.ExpiresAt)
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (ir *invitationRepo) Update(ctx context.Context, tx adapter.Tx, id t.InvitationId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, id)
	res, err := ir.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE invitations SET %s WHERE id = ?", set), args...)
	return checkAffected(res, err, "invitation", id.String())
}

func (ir *invitationRepo) Delete(ctx context.Context, tx adapter.Tx, id t.InvitationId) error {
	res, err := ir.s.ext(tx).ExecContext(ctx, "DELETE FROM invitations WHERE id = ?", id)
	return checkAffected(res, err, "invitation", id.String())
}

func (ir *invitationRepo) ExistsPendingFor(ctx context.Context, tx adapter.Tx, roomID t.RoomId, recipient t.UserId) (bool, error) {
	return existsQuery(ctx, ir.s.ext(tx),
		"SELECT 1 FROM invitations WHERE room_id = ? AND recipient_user_id = ? AND status = ? AND expires_at > ? FOR UPDATE",
		roomID, recipient, t.InvitationPending, time.Now())
}

func (ir *invitationRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	res, err := ir.s.ext(tx).ExecContext(ctx, "DELETE FROM invitations WHERE sender_user_id = ? OR recipient_user_id = ?", userID, userID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (ir *invitationRepo) DeleteAllForRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	res, err := ir.s.ext(tx).ExecContext(ctx, "DELETE FROM invitations WHERE room_id = ?", roomID)
	if err != nil {
		return 0, t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
