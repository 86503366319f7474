package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
)

type userRepo struct{ s *Store }

type userRow struct {
	Id           t.UserId   `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	DisplayName  string     `db:"display_name"`
	Role         t.UserRole `db:"role"`
	Status       t.UserStatus `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    *time.Time `db:"last_login"`
}

func (r userRow) toUser() *t.User {
	return &t.User{
		Id: r.Id, Username: r.Username, Email: r.Email, PasswordHash: r.PasswordHash,
		DisplayName: r.DisplayName, Role: r.Role, Status: r.Status,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, LastLogin: r.LastLogin,
	}
}

const userSelect = `SELECT id, username, email, password_hash, display_name, role, status, created_at, updated_at, last_login FROM users`

func (ur *userRepo) Get(ctx context.Context, id t.UserId) (*t.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, ur.s.db, &row, userSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toUser(), nil
}

func (ur *userRepo) GetByUsername(ctx context.Context, username string) (*t.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, ur.s.db, &row, userSelect+" WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.QueryError(err.Error())
	}
	return row.toUser(), nil
}

func (ur *userRepo) Create(ctx context.Context, tx adapter.Tx, u *t.User) error {
	_, err := ur.s.ext(tx).ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, display_name, role, status, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Id, u.Username, u.Email, u.PasswordHash, u.DisplayName, u.Role, u.Status, u.CreatedAt, u.UpdatedAt, u.LastLogin)
	if isDuplicateKey(err) {
		return t.AlreadyExists("user", u.Username)
	}
	if err != nil {
		return t.QueryError(err.Error())
	}
	return nil
}

func (ur *userRepo) Update(ctx context.Context, tx adapter.Tx, id t.UserId, update map[string]any) error {
	set, args := buildSet(update)
	if set == "" {
		return nil
	}
	args = append(args, id)
	res, err := ur.s.ext(tx).ExecContext(ctx, fmt.Sprintf("UPDATE users SET %s, updated_at = NOW(3) WHERE id = ?", set), args...)
	return checkAffected(res, err, "user", id.String())
}

func (ur *userRepo) Delete(ctx context.Context, tx adapter.Tx, id t.UserId) error {
	res, err := ur.s.ext(tx).ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return checkAffected(res, err, "user", id.String())
}

func (ur *userRepo) ExistsUsername(ctx context.Context, tx adapter.Tx, username string) (bool, error) {
	return existsQuery(ctx, ur.s.ext(tx), "SELECT 1 FROM users WHERE username = ? FOR UPDATE", username)
}

func (ur *userRepo) Exists(ctx context.Context, tx adapter.Tx, id t.UserId) (bool, error) {
	return existsQuery(ctx, ur.s.ext(tx), "SELECT 1 FROM users WHERE id = ? FOR UPDATE", id)
}

// buildSet turns a column->value map into a SQL SET clause and its bound
// args, in deterministic order. JSON-typed columns are marshalled.
func buildSet(update map[string]any) (string, []any) {
	if len(update) == 0 {
		return "", nil
	}
	cols := make([]string, 0, len(update))
	for k := range update {
		cols = append(cols, k)
	}
	// deterministic ordering keeps generated SQL stable across calls, which
	// matters for query-plan caching and for tests that assert on SQL text.
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && cols[j-1] > cols[j]; j-- {
			cols[j-1], cols[j] = cols[j], cols[j-1]
		}
	}
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v := update[col]
		if col == "settings" || col == "metadata" {
			b, _ := json.Marshal(v)
			v = string(b)
		}
		parts = append(parts, col+" = ?")
		args = append(args, v)
	}
	return strings.Join(parts, ", "), args
}

func checkAffected(res sql.Result, err error, entity, id string) error {
	if err != nil {
		return t.QueryError(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return t.NotFound(entity, id)
	}
	return nil
}

func existsQuery(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (bool, error) {
	rows, err := ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return false, t.QueryError(err.Error())
	}
	defer rows.Close()
	return rows.Next(), nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Duplicate entry") || strings.Contains(err.Error(), "1062")
}
