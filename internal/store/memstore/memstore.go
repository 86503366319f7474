// Package memstore is an in-memory adapter.Adapter used by unit tests of
// internal/store/txops and internal/command, and by relaychatd's "memory"
// database driver, without a real database. It enforces the same serializable-by-construction
// semantics as sqlstore by holding one global mutex for the lifetime of
// each transaction, which is sufficient because there is only one process.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relaychat/server/internal/store/adapter"
	"github.com/relaychat/server/internal/store/txops"
	t "github.com/relaychat/server/internal/store/types"
)

type txToken struct{}

// Store is a fully in-memory adapter.Adapter.
type Store struct {
	mu sync.Mutex

	users       map[t.UserId]*t.User
	usersByName map[string]t.UserId
	rooms       map[t.RoomId]*t.Room
	roomsByName map[string]t.RoomId
	memberships map[t.RoomId]map[t.UserId]*t.Membership
	messages    map[t.MessageId]*t.Message
	sessions    map[t.SessionId]*t.Session
	invitations map[t.InvitationId]*t.Invitation
	audit       []*t.AuditEntry

	inTx bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:       map[t.UserId]*t.User{},
		usersByName: map[string]t.UserId{},
		rooms:       map[t.RoomId]*t.Room{},
		roomsByName: map[string]t.RoomId{},
		memberships: map[t.RoomId]map[t.UserId]*t.Membership{},
		messages:    map[t.MessageId]*t.Message{},
		sessions:    map[t.SessionId]*t.Session{},
		invitations: map[t.InvitationId]*t.Invitation{},
	}
}

func (s *Store) Open(ctx context.Context) error  { return nil }
func (s *Store) Close() error                    { return nil }
func (s *Store) Ping(ctx context.Context) error  { return nil }
func (s *Store) Name() string                    { return "memstore" }

func (s *Store) Users() adapter.UserRepo             { return (*userRepo)(s) }
func (s *Store) Rooms() adapter.RoomRepo             { return (*roomRepo)(s) }
func (s *Store) Memberships() adapter.MembershipRepo { return (*membershipRepo)(s) }
func (s *Store) Messages() adapter.MessageRepo       { return (*messageRepo)(s) }
func (s *Store) Sessions() adapter.SessionRepo       { return (*sessionRepo)(s) }
func (s *Store) Invitations() adapter.InvitationRepo { return (*invitationRepo)(s) }
func (s *Store) Audit() adapter.AuditRepo            { return (*auditRepo)(s) }

func (s *Store) Begin(ctx context.Context) (adapter.Tx, error) {
	s.mu.Lock()
	s.inTx = true
	return txToken{}, nil
}

func (s *Store) Commit(ctx context.Context, tx adapter.Tx) error {
	s.inTx = false
	s.mu.Unlock()
	return nil
}

func (s *Store) Rollback(ctx context.Context, tx adapter.Tx) error {
	s.inTx = false
	s.mu.Unlock()
	return nil
}

// IsSerializationConflict never fires for memstore: the single global mutex
// makes every transaction strictly serial, so the backend cannot observe a
// concurrent write to retry around.
func (s *Store) IsSerializationConflict(err error) bool { return false }

type userRepo Store

func (r *userRepo) store() *Store { return (*Store)(r) }

func (r *userRepo) Get(ctx context.Context, id t.UserId) (*t.User, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*t.User, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByName[username]
	if !ok {
		return nil, nil
	}
	cp := *s.users[id]
	return &cp, nil
}

func (r *userRepo) Create(ctx context.Context, tx adapter.Tx, u *t.User) error {
	s := r.store()
	if _, exists := s.usersByName[u.Username]; exists {
		return t.AlreadyExists("user", u.Username)
	}
	cp := *u
	s.users[u.Id] = &cp
	s.usersByName[u.Username] = u.Id
	return nil
}

func (r *userRepo) Update(ctx context.Context, tx adapter.Tx, id t.UserId, update map[string]any) error {
	s := r.store()
	u, ok := s.users[id]
	if !ok {
		return t.NotFound("user", id.String())
	}
	applyUserUpdate(u, update)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) Delete(ctx context.Context, tx adapter.Tx, id t.UserId) error {
	s := r.store()
	u, ok := s.users[id]
	if !ok {
		return t.NotFound("user", id.String())
	}
	delete(s.usersByName, u.Username)
	delete(s.users, id)
	return nil
}

func (r *userRepo) ExistsUsername(ctx context.Context, tx adapter.Tx, username string) (bool, error) {
	s := r.store()
	_, ok := s.usersByName[username]
	return ok, nil
}

func (r *userRepo) Exists(ctx context.Context, tx adapter.Tx, id t.UserId) (bool, error) {
	s := r.store()
	_, ok := s.users[id]
	return ok, nil
}

func applyUserUpdate(u *t.User, update map[string]any) {
	for k, v := range update {
		switch k {
		case "display_name":
			u.DisplayName = v.(string)
		case "status":
			u.Status = v.(t.UserStatus)
		case "role":
			u.Role = v.(t.UserRole)
		case "email":
			u.Email = v.(string)
		case "last_login":
			tv := v.(time.Time)
			u.LastLogin = &tv
		}
	}
}

type roomRepo Store

func (r *roomRepo) store() *Store { return (*Store)(r) }

func (r *roomRepo) Get(ctx context.Context, id t.RoomId) (*t.Room, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *rm
	return &cp, nil
}

func (r *roomRepo) GetByName(ctx context.Context, name string) (*t.Room, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.roomsByName[name]
	if !ok {
		return nil, nil
	}
	cp := *s.rooms[id]
	return &cp, nil
}

func (r *roomRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, id t.RoomId) (*t.Room, error) {
	s := r.store()
	rm, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *rm
	return &cp, nil
}

func (r *roomRepo) Create(ctx context.Context, tx adapter.Tx, room *t.Room) error {
	s := r.store()
	cp := *room
	s.rooms[room.Id] = &cp
	if room.IsActive {
		s.roomsByName[room.Name] = room.Id
	}
	return nil
}

func (r *roomRepo) Update(ctx context.Context, tx adapter.Tx, id t.RoomId, update map[string]any) error {
	s := r.store()
	rm, ok := s.rooms[id]
	if !ok {
		return t.NotFound("room", id.String())
	}
	for k, v := range update {
		switch k {
		case "name":
			delete(s.roomsByName, rm.Name)
			rm.Name = v.(string)
			if rm.IsActive {
				s.roomsByName[rm.Name] = id
			}
		case "description":
			sv := v.(string)
			rm.Description = &sv
		}
	}
	rm.UpdatedAt = time.Now()
	return nil
}

func (r *roomRepo) Delete(ctx context.Context, tx adapter.Tx, id t.RoomId) error {
	s := r.store()
	rm, ok := s.rooms[id]
	if !ok {
		return t.NotFound("room", id.String())
	}
	delete(s.roomsByName, rm.Name)
	delete(s.rooms, id)
	return nil
}

func (r *roomRepo) ExistsActiveName(ctx context.Context, tx adapter.Tx, name string) (bool, error) {
	s := r.store()
	id, ok := s.roomsByName[name]
	if !ok {
		return false, nil
	}
	return s.rooms[id].IsActive, nil
}

func (r *roomRepo) SetActive(ctx context.Context, tx adapter.Tx, id t.RoomId, active bool) error {
	s := r.store()
	rm, ok := s.rooms[id]
	if !ok {
		return t.NotFound("room", id.String())
	}
	rm.IsActive = active
	rm.UpdatedAt = time.Now()
	if !active {
		delete(s.roomsByName, rm.Name)
	} else {
		s.roomsByName[rm.Name] = id
	}
	return nil
}

type membershipRepo Store

func (r *membershipRepo) store() *Store { return (*Store)(r) }

func (r *membershipRepo) roomMap(roomID t.RoomId) map[t.UserId]*t.Membership {
	s := r.store()
	m, ok := s.memberships[roomID]
	if !ok {
		m = map[t.UserId]*t.Membership{}
		s.memberships[roomID] = m
	}
	return m
}

func (r *membershipRepo) Get(ctx context.Context, roomID t.RoomId, userID t.UserId) (*t.Membership, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := r.roomMap(roomID)[userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *membershipRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId) (*t.Membership, error) {
	m, ok := r.roomMap(roomID)[userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *membershipRepo) ListByRoom(ctx context.Context, roomID t.RoomId) ([]t.Membership, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []t.Membership
	for _, m := range r.roomMap(roomID) {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserId.String() < out[j].UserId.String() })
	return out, nil
}

func (r *membershipRepo) ListByUser(ctx context.Context, userID t.UserId) ([]t.Membership, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []t.Membership
	for _, byUser := range s.memberships {
		if m, ok := byUser[userID]; ok {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomId.String() < out[j].RoomId.String() })
	return out, nil
}

func (r *membershipRepo) Create(ctx context.Context, tx adapter.Tx, m *t.Membership) error {
	cp := *m
	r.roomMap(m.RoomId)[m.UserId] = &cp
	return nil
}

func (r *membershipRepo) Update(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId, update map[string]any) error {
	m, ok := r.roomMap(roomID)[userID]
	if !ok {
		return t.NotFound("membership", userID.String())
	}
	for k, v := range update {
		switch k {
		case "status":
			m.Status = v.(t.MembershipStatus)
		case "role":
			m.Role = v.(t.MembershipRole)
		}
	}
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, tx adapter.Tx, roomID t.RoomId, userID t.UserId) error {
	m := r.roomMap(roomID)
	if _, ok := m[userID]; !ok {
		return t.NotFound("membership", userID.String())
	}
	delete(m, userID)
	return nil
}

func (r *membershipRepo) CountActiveByRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	n := 0
	for _, m := range r.roomMap(roomID) {
		if m.Status == t.MembershipActive {
			n++
		}
	}
	return n, nil
}

func (r *membershipRepo) DeleteAllForRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	s := r.store()
	n := len(s.memberships[roomID])
	delete(s.memberships, roomID)
	return n, nil
}

func (r *membershipRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	s := r.store()
	n := 0
	for _, byUser := range s.memberships {
		if _, ok := byUser[userID]; ok {
			delete(byUser, userID)
			n++
		}
	}
	return n, nil
}

type messageRepo Store

func (r *messageRepo) store() *Store { return (*Store)(r) }

func (r *messageRepo) Get(ctx context.Context, id t.MessageId) (*t.Message, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *messageRepo) ListByRoom(ctx context.Context, roomID t.RoomId, limit int, before time.Time) ([]t.Message, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []t.Message
	for _, m := range s.messages {
		if m.RoomId != nil && *m.RoomId == roomID && m.CreatedAt.Before(before) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *messageRepo) Create(ctx context.Context, tx adapter.Tx, m *t.Message) error {
	s := r.store()
	if m.Id.IsZero() {
		m.Id = t.NewMessageId()
	}
	cp := *m
	s.messages[m.Id] = &cp
	return nil
}

func (r *messageRepo) Update(ctx context.Context, tx adapter.Tx, id t.MessageId, update map[string]any) error {
	s := r.store()
	m, ok := s.messages[id]
	if !ok {
		return t.NotFound("message", id.String())
	}
	for k, v := range update {
		if k == "content" {
			m.Content = v.(string)
			now := time.Now()
			m.EditedAt = &now
		}
	}
	return nil
}

func (r *messageRepo) SoftDelete(ctx context.Context, tx adapter.Tx, id t.MessageId) error {
	s := r.store()
	m, ok := s.messages[id]
	if !ok {
		return t.NotFound("message", id.String())
	}
	m.Deleted = true
	return nil
}

func (r *messageRepo) DeleteAllByRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	s := r.store()
	n := 0
	for id, m := range s.messages {
		if m.RoomId != nil && *m.RoomId == roomID {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) DeleteAllByAuthor(ctx context.Context, tx adapter.Tx, author t.UserId) (int, error) {
	s := r.store()
	n := 0
	for id, m := range s.messages {
		if m.Author == author {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

type sessionRepo Store

func (r *sessionRepo) store() *Store { return (*Store)(r) }

func (r *sessionRepo) Get(ctx context.Context, id t.SessionId) (*t.Session, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (r *sessionRepo) Create(ctx context.Context, tx adapter.Tx, sess *t.Session) error {
	s := r.store()
	cp := *sess
	s.sessions[sess.Id] = &cp
	return nil
}

func (r *sessionRepo) Update(ctx context.Context, tx adapter.Tx, id t.SessionId, update map[string]any) error {
	s := r.store()
	sess, ok := s.sessions[id]
	if !ok {
		return t.NotFound("session", id.String())
	}
	for k, v := range update {
		switch k {
		case "last_activity":
			sess.LastActivity = v.(time.Time)
		case "is_active":
			sess.IsActive = v.(bool)
		}
	}
	return nil
}

func (r *sessionRepo) Deactivate(ctx context.Context, tx adapter.Tx, id t.SessionId) error {
	s := r.store()
	sess, ok := s.sessions[id]
	if !ok {
		return t.NotFound("session", id.String())
	}
	sess.IsActive = false
	return nil
}

func (r *sessionRepo) DeleteAllByUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	s := r.store()
	n := 0
	for id, sess := range s.sessions {
		if sess.UserId == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type invitationRepo Store

func (r *invitationRepo) store() *Store { return (*Store)(r) }

func (r *invitationRepo) Get(ctx context.Context, id t.InvitationId) (*t.Invitation, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *invitationRepo) GetForUpdate(ctx context.Context, tx adapter.Tx, id t.InvitationId) (*t.Invitation, error) {
	s := r.store()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *invitationRepo) ListPendingForUser(ctx context.Context, userID t.UserId) ([]t.Invitation, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []t.Invitation
	now := time.Now()
	for _, inv := range s.invitations {
		if inv.RecipientUserId == userID && inv.Status == t.InvitationPending && !inv.IsExpired(now) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *invitationRepo) Create(ctx context.Context, tx adapter.Tx, inv *t.Invitation) error {
	s := r.store()
	cp := *inv
	s.invitations[inv.Id] = &cp
	return nil
}

func (r *invitationRepo) Update(ctx context.Context, tx adapter.Tx, id t.InvitationId, update map[string]any) error {
	s := r.store()
	inv, ok := s.invitations[id]
	if !ok {
		return t.NotFound("invitation", id.String())
	}
	for k, v := range update {
		if k == "status" {
			inv.Status = v.(t.InvitationStatus)
		}
	}
	return nil
}

func (r *invitationRepo) Delete(ctx context.Context, tx adapter.Tx, id t.InvitationId) error {
	s := r.store()
	if _, ok := s.invitations[id]; !ok {
		return t.NotFound("invitation", id.String())
	}
	delete(s.invitations, id)
	return nil
}

func (r *invitationRepo) ExistsPendingFor(ctx context.Context, tx adapter.Tx, roomID t.RoomId, recipient t.UserId) (bool, error) {
	s := r.store()
	now := time.Now()
	for _, inv := range s.invitations {
		if inv.RoomId == roomID && inv.RecipientUserId == recipient && inv.Status == t.InvitationPending && !inv.IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *invitationRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	s := r.store()
	n := 0
	for id, inv := range s.invitations {
		if inv.SenderUserId == userID || inv.RecipientUserId == userID {
			delete(s.invitations, id)
			n++
		}
	}
	return n, nil
}

func (r *invitationRepo) DeleteAllForRoom(ctx context.Context, tx adapter.Tx, roomID t.RoomId) (int, error) {
	s := r.store()
	n := 0
	for id, inv := range s.invitations {
		if inv.RoomId == roomID {
			delete(s.invitations, id)
			n++
		}
	}
	return n, nil
}

type auditRepo Store

func (r *auditRepo) store() *Store { return (*Store)(r) }

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]t.AuditEntry, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.audit)
	start := 0
	if limit > 0 && n > limit {
		start = n - limit
	}
	out := make([]t.AuditEntry, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, *s.audit[i])
	}
	return out, nil
}

func (r *auditRepo) Append(ctx context.Context, tx adapter.Tx, entry *t.AuditEntry) error {
	s := r.store()
	cp := *entry
	s.audit = append(s.audit, &cp)
	return nil
}

func (r *auditRepo) DeleteAllForUser(ctx context.Context, tx adapter.Tx, userID t.UserId) (int, error) {
	s := r.store()
	n := 0
	kept := s.audit[:0]
	for _, e := range s.audit {
		if e.ActorId == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return n, nil
}

// Ops returns the shared, backend-agnostic transaction operations (spec
// section 4.D) bound to this store.
func (s *Store) Ops() *txops.Ops { return txops.New(s) }
