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

type roomRepo struct{ s *Store }

type roomRow struct {
	Id          t.RoomId       `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Type        t.RoomType     `db:"type"`
	Privacy     t.RoomPrivacy  `db:"privacy"`
	Settings    []byte         `db:"settings"`
	CreatedBy   t.UserId       `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	IsActive    bool           `db:"is_active"`
}

func (r roomRow) toRoom() *t.Room {
	room := &t.Room{
		Id: r.Id, Name: r.Name, Type: r.Type, Privacy: r.Privacy,
		CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, IsActive: r.IsActive,
	}
	if r.Description.Valid {
		room.Description = &r.Description.String
	}
	_ = json.Unmarshal(r.Settings, &room.Settings)
	return room
}

const roomSelect = `SELECT id, name, description, type, privacy, settings, created_by, created_at, updated_at, is_active FROM rooms`

func (rr *roomRepo) Get(ctx context.Context, id t.RoomId) (*t.Room, error) {
	var row roomRow
	err := sqlx.GetContext(ctx, rr.s.db, &row, roomSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toRoom(), nil
}

func (rr *roomRepo) GetByName(ctx context.Context, name string) (*t.Room, error) {
	var row roomRow
	err := sqlx.GetContext(ctx, rr.s.db, &row, roomSelect+" WHERE name = ? AND is_active = TRUE", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toRoom(), nil
}

func (rr *roomRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, id t.RoomId) (*t.Room, error) {
	var row roomRow
	err := sqlx.GetContext(ctx, rr.s.ext(tx), &row, roomSelect+" WHERE id = ? FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toRoom(), nil
}

func (rr *roomRepo) Create(ctx context.Context, tx adapter.Tx, room *t.Room) error {
	settings, _ := json.Marshal(room.Settings)
	_, err := rr.s.ext(tx).ExecContext(ctx, `
		INSERT INTO rooms (id, name, description, type, privacy, settings, created_by, created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.Id, room.Name, room.Description, room.Type, room.Privacy, settings, room.CreatedBy, room.CreatedAt, room.UpdatedAt, room.IsActive)
	if isDuplicateKey(err) {
		return t.AlreadyExists("room", room.Name)
	}
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (rr *roomRepo) Update(ctx context.Context, tx adapter.Tx, id t.RoomId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, id)
	res, err := rr.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE rooms SET %s, updated_at = NOW(3) WHERE id = ?", set), args...)
	return checkAffected(res, err, "room", id.String())
}

func (rr *roomRepo) Delete(ctx context.Context, tx adapter.Tx, id t.RoomId) error {
	res, err := rr.s.ext(tx).ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	return checkAffected(res, err, "room", id.String())
}

func (rr *roomRepo) ExistsActiveName(ctx context.Context, tx adapter.Tx, name string) (bool, error) {
	return existsQuery(ctx, rr.s.ext(tx), "SELECT 1 FROM rooms WHERE name = ? AND is_active = TRUE FOR UPDATE", name)
}

func (rr *roomRepo) SetActive(ctx context.Context, tx adapter.Tx, id t.RoomId, active bool) error {
	res, err := rr.s.ext(tx).ExecContext(ctx, "UPDATE rooms SET is_active = ?, updated_at = NOW(3) WHERE id = ?", active, id)
	return checkAffected(res, err, "room", id.String())
}
