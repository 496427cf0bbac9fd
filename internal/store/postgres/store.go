package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/store"
)

// Store implements store.Store on top of a pgxpool.Pool. Migrations are applied separately via Migrate before the
// pool is handed to New.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New wraps an already-connected pool as a store.Store.
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "store.postgres").Logger()}
}

func (s *Store) Initialize(ctx context.Context) error { return nil }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func now() int64 { return time.Now().UnixMilli() }

// notFound maps the absence of a row to the store's sentinel, leaving any other error untouched.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// ---- accounts ----

func (s *Store) LookupAccount(ctx context.Context, email string) (*store.Account, error) {
	return s.scanAccount(ctx, s.pool, `SELECT id, email, name, password_hash, two_factor_enabled, auth_token FROM accounts WHERE email = $1`, email)
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	return s.scanAccount(ctx, s.pool, `SELECT id, email, name, password_hash, two_factor_enabled, auth_token FROM accounts WHERE id = $1`, id)
}

func (s *Store) scanAccount(ctx context.Context, q queryer, query string, arg any) (*store.Account, error) {
	row := q.QueryRow(ctx, query, arg)
	var a store.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.TwoFactorEnabled, &a.AuthToken); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, name, email, passwordHash string) (*store.Account, error) {
	a := &store.Account{ID: uuid.New(), Email: email, Name: name, PasswordHash: passwordHash}
	_, err := s.pool.Exec(ctx, `INSERT INTO accounts (id, email, name, password_hash) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Email, a.Name, a.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ResetPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	return s.mustAffectOne(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
}

func (s *Store) GetTwoFactor(ctx context.Context, userID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx, `SELECT two_factor_enabled FROM accounts WHERE id = $1`, userID).Scan(&enabled)
	return enabled, notFound(err)
}

func (s *Store) SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool) error {
	return s.mustAffectOne(ctx, `UPDATE accounts SET two_factor_enabled = $2 WHERE id = $1`, userID, enabled)
}

func (s *Store) GetAuthToken(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx, `SELECT auth_token FROM accounts WHERE id = $1`, userID).Scan(&token)
	return token, notFound(err)
}

func (s *Store) SetAuthToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.mustAffectOne(ctx, `UPDATE accounts SET auth_token = $2 WHERE id = $1`, userID, token)
}

// ---- groups ----

func (s *Store) CreateGroup(ctx context.Context, ownerID uuid.UUID, ownerName, name string) (*store.Group, error) {
	g := &store.Group{ID: uuid.New(), Name: name, ModifiedAt: now()}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO groups (id, name, modified_at) VALUES ($1, $2, $3)`, g.ID, g.Name, g.ModifiedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO members (group_id, user_id, name, role) VALUES ($1, $2, $3, $4)`,
			g.ID, ownerID, ownerName, int16(store.RoleOwner))
		return err
	})
	if err != nil {
		return nil, err
	}
	g.Members = []store.Member{{UserID: ownerID, Name: ownerName, Role: store.RoleOwner}}
	return g, nil
}

func (s *Store) CreateSubGroup(ctx context.Context, parentGroupID, ownerID uuid.UUID, ownerName, name string, memberIDs []uuid.UUID, memberNames map[uuid.UUID]string) (*store.Group, error) {
	var requireApproval bool
	if err := s.pool.QueryRow(ctx, `SELECT require_approval FROM groups WHERE id = $1`, parentGroupID).Scan(&requireApproval); err != nil {
		return nil, notFound(err)
	}

	g := &store.Group{ID: uuid.New(), Name: name, RequireApproval: requireApproval, ModifiedAt: now()}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO groups (id, name, require_approval, modified_at) VALUES ($1, $2, $3, $4)`,
			g.ID, g.Name, g.RequireApproval, g.ModifiedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO members (group_id, user_id, name, role) VALUES ($1, $2, $3, $4)`,
			g.ID, ownerID, ownerName, int16(store.RoleOwner)); err != nil {
			return err
		}
		for _, id := range memberIDs {
			if id == ownerID {
				continue
			}
			if _, err := tx.Exec(ctx, `INSERT INTO members (group_id, user_id, name, role) VALUES ($1, $2, $3, $4)`,
				g.ID, id, memberNames[id], int16(store.RoleUser)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetGroupByID(ctx, g.ID)
}

// GetGroupByID loads a full group snapshot, including its members and module ids. It is not part of store.Store but
// backs the multi-statement group constructors above.
func (s *Store) GetGroupByID(ctx context.Context, groupID uuid.UUID) (*store.Group, error) {
	var g store.Group
	err := s.pool.QueryRow(ctx, `SELECT id, name, require_approval, modified_at FROM groups WHERE id = $1`, groupID).
		Scan(&g.ID, &g.Name, &g.RequireApproval, &g.ModifiedAt)
	if err != nil {
		return nil, notFound(err)
	}
	members, err := s.loadMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	g.Members = members
	modules, err := s.loadModuleIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	g.Modules = modules
	return &g, nil
}

func (s *Store) loadMembers(ctx context.Context, groupID uuid.UUID) ([]store.Member, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, name, role, muted FROM members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Member
	for rows.Next() {
		var m store.Member
		var role int16
		if err := rows.Scan(&m.UserID, &m.Name, &role, &m.Muted); err != nil {
			return nil, err
		}
		m.Role = store.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) loadModuleIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM modules WHERE group_id = $1 ORDER BY seq`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) GetGroups(ctx context.Context, userID uuid.UUID) ([]*store.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id FROM members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*store.Group
	for _, id := range ids {
		g, err := s.GetGroupByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) GetGroupInfo(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID, lastRefresh int64) ([]*store.Group, error) {
	var out []*store.Group
	for _, gid := range groupIDs {
		var modifiedAt int64
		err := s.pool.QueryRow(ctx, `
			SELECT g.modified_at FROM groups g
			JOIN members m ON m.group_id = g.id AND m.user_id = $2
			WHERE g.id = $1`, gid, userID).Scan(&modifiedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if modifiedAt <= lastRefresh {
			continue
		}
		g, err := s.GetGroupByID(ctx, gid)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) GetGroupName(ctx context.Context, groupID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM groups WHERE id = $1`, groupID).Scan(&name)
	return name, notFound(err)
}

func (s *Store) GetGroupRequireApproval(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var require bool
	err := s.pool.QueryRow(ctx, `SELECT require_approval FROM groups WHERE id = $1`, groupID).Scan(&require)
	return require, notFound(err)
}

// ---- members ----

func (s *Store) CheckUserInGroup(ctx context.Context, groupID, userID uuid.UUID) (*store.Member, error) {
	var m store.Member
	var role int16
	err := s.pool.QueryRow(ctx, `SELECT user_id, name, role, muted FROM members WHERE group_id = $1 AND user_id = $2`, groupID, userID).
		Scan(&m.UserID, &m.Name, &role, &m.Muted)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qErr := s.pool.QueryRow(ctx, `SELECT true FROM groups WHERE id = $1`, groupID).Scan(&exists); qErr != nil {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	m.Role = store.Role(role)
	return &m, nil
}

func (s *Store) GetRole(ctx context.Context, groupID, userID uuid.UUID) (store.Role, error) {
	m, err := s.CheckUserInGroup(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}
	return m.Role, nil
}

func (s *Store) GetMuted(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	m, err := s.CheckUserInGroup(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return m.Muted, nil
}

func (s *Store) GetUsers(ctx context.Context, groupID uuid.UUID) ([]store.Member, error) {
	if _, err := s.GetGroupName(ctx, groupID); err != nil {
		return nil, err
	}
	return s.loadMembers(ctx, groupID)
}

func (s *Store) GetUserInfo(ctx context.Context, groupID, userID uuid.UUID) (*store.Member, error) {
	return s.CheckUserInGroup(ctx, groupID, userID)
}

func (s *Store) GetUserName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM accounts WHERE id = $1`, userID).Scan(&name)
	return name, notFound(err)
}

func (s *Store) SetRole(ctx context.Context, groupID, actorID, targetID uuid.UUID, role store.Role) (bool, error) {
	transferred := false
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE members SET role = $3 WHERE group_id = $1 AND user_id = $2`, groupID, targetID, int16(role))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.requireGroupExists(ctx, tx, groupID); err != nil {
				return err
			}
			return store.ErrNotMember
		}
		if role == store.RoleOwner {
			if _, err := tx.Exec(ctx, `UPDATE members SET role = $3 WHERE group_id = $1 AND user_id = $2`,
				groupID, actorID, int16(store.RoleModerator)); err != nil {
				return err
			}
			transferred = true
		}
		_, err = tx.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, now())
		return err
	})
	return transferred, err
}

func (s *Store) requireGroupExists(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) (struct{}, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT true FROM groups WHERE id = $1`, groupID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return struct{}{}, store.ErrNotFound
	}
	return struct{}{}, err
}

func (s *Store) SetMuted(ctx context.Context, groupID, targetID uuid.UUID, muted bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE members SET muted = $3 WHERE group_id = $1 AND user_id = $2`, groupID, targetID, muted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.memberMutationNotFoundErr(ctx, groupID)
	}
	return nil
}

func (s *Store) Kick(ctx context.Context, groupID, targetID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM members WHERE group_id = $1 AND user_id = $2`, groupID, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.memberMutationNotFoundErr(ctx, groupID)
	}
	_, err = s.pool.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, now())
	return err
}

// memberMutationNotFoundErr distinguishes "no such group" from "group exists but user isn't a member" after a
// zero-row-affected member mutation.
func (s *Store) memberMutationNotFoundErr(ctx context.Context, groupID uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT true FROM groups WHERE id = $1`, groupID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrNotMember
}

func (s *Store) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	deleted := false
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.requireGroupExists(ctx, tx, groupID); err != nil {
				return err
			}
			return store.ErrNotMember
		}
		var remaining int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM members WHERE group_id = $1`, groupID).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			// ON DELETE CASCADE on modules/invites/invite_links takes care of the rest.
			if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
				return err
			}
			deleted = true
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, now())
		return err
	})
	return deleted, err
}

// ---- modules ----

func (s *Store) CreateModule(ctx context.Context, groupID uuid.UUID, name string, moduleType store.ModuleType) (*store.Module, error) {
	m := &store.Module{ID: uuid.New(), GroupID: groupID, Type: moduleType, Name: name, Enabled: true, ModifiedAt: now()}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, m.ModifiedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		_, err = tx.Exec(ctx, `INSERT INTO modules (id, group_id, type, name, enabled, modified_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.GroupID, string(m.Type), m.Name, m.Enabled, m.ModifiedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) GetModules(ctx context.Context, groupID uuid.UUID) ([]*store.Module, error) {
	if _, err := s.GetGroupName(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT id, group_id, type, name, enabled, modified_at FROM modules WHERE group_id = $1 ORDER BY seq`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetModuleInfo(ctx context.Context, moduleID uuid.UUID) (*store.Module, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, group_id, type, name, enabled, modified_at FROM modules WHERE id = $1`, moduleID)
	m, err := scanModule(row)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (*store.Module, error) {
	var m store.Module
	var typ string
	if err := row.Scan(&m.ID, &m.GroupID, &typ, &m.Name, &m.Enabled, &m.ModifiedAt); err != nil {
		return nil, err
	}
	m.Type = store.ModuleType(typ)
	return &m, nil
}

func (s *Store) CheckModuleInGroup(ctx context.Context, moduleType store.ModuleType, moduleID, groupID uuid.UUID) error {
	var typ string
	err := s.pool.QueryRow(ctx, `SELECT type FROM modules WHERE id = $1 AND group_id = $2`, moduleID, groupID).Scan(&typ)
	if err != nil {
		return notFound(err)
	}
	if store.ModuleType(typ) != moduleType {
		return store.ErrWrongModule
	}
	return nil
}

func (s *Store) SetRequireApproval(ctx context.Context, groupID uuid.UUID, require bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE groups SET require_approval = $2, modified_at = $3 WHERE id = $1`, groupID, require, now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetModuleEnabled(ctx context.Context, groupID, moduleID uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE modules SET enabled = $3, modified_at = $4 WHERE id = $1 AND group_id = $2`,
		moduleID, groupID, enabled, now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- invites ----

func (s *Store) AddGroupInviteCode(ctx context.Context, groupID uuid.UUID, code string, expireAt int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invite_links (code, group_id, expire_at) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET group_id = EXCLUDED.group_id, expire_at = EXCLUDED.expire_at`,
		code, groupID, expireAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) CheckInviteCode(ctx context.Context, code string) (*store.InviteLink, error) {
	var l store.InviteLink
	err := s.pool.QueryRow(ctx, `SELECT code, group_id, expire_at FROM invite_links WHERE code = $1`, code).
		Scan(&l.Code, &l.GroupID, &l.ExpireAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Store) JoinGroup(ctx context.Context, groupID, userID uuid.UUID, name string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO members (group_id, user_id, name, role) VALUES ($1, $2, $3, $4)`,
		groupID, userID, name, int16(store.RoleUser))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, now())
	return err
}

func (s *Store) SendInvite(ctx context.Context, groupID, targetID uuid.UUID, groupName, inviterName string) (bool, error) {
	if _, err := s.GetGroupName(ctx, groupID); err != nil {
		return false, err
	}

	var alreadyMember bool
	err := s.pool.QueryRow(ctx, `SELECT true FROM members WHERE group_id = $1 AND user_id = $2`, groupID, targetID).Scan(&alreadyMember)
	if err == nil {
		return false, store.ErrAlreadyExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO invites (group_id, user_id, group_name, inviter_name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, targetID, groupName, inviterName)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return true, nil
	}
	return false, nil
}

func (s *Store) GetInvites(ctx context.Context, userID uuid.UUID) ([]*store.Invite, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id, user_id, group_name, inviter_name FROM invites WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Invite
	for rows.Next() {
		var inv store.Invite
		if err := rows.Scan(&inv.GroupID, &inv.UserID, &inv.GroupName, &inv.InviterName); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func (s *Store) ReplyToInvite(ctx context.Context, groupID, userID uuid.UUID, accept bool, name string) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM invites WHERE group_id = $1 AND user_id = $2`, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		if !accept {
			return nil
		}
		res, err := tx.Exec(ctx, `INSERT INTO members (group_id, user_id, name, role) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			groupID, userID, name, int16(store.RoleUser))
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE groups SET modified_at = $2 WHERE id = $1`, groupID, now())
		return err
	})
}

// ---- messages ----

// nextModuleID atomically allocates the next item id for moduleID, shared across messages/tasks/events/polls the
// same way a module's single counter is shared in-memory.
func (s *Store) nextModuleID(ctx context.Context, tx pgx.Tx, moduleID uuid.UUID) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `UPDATE modules SET next_id = next_id + 1 WHERE id = $1 RETURNING next_id`, moduleID).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func (s *Store) SendMessage(ctx context.Context, moduleID, sender uuid.UUID, contents string) (*store.Message, error) {
	msg := &store.Message{ModuleID: moduleID, Sender: sender, Timestamp: now(), Contents: contents}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := s.nextModuleID(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		msg.ID = id
		_, err = tx.Exec(ctx, `INSERT INTO messages (module_id, id, sender, ts, contents) VALUES ($1, $2, $3, $4, $5)`,
			moduleID, msg.ID, sender, msg.Timestamp, msg.Contents)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) GetMessages(ctx context.Context, moduleID uuid.UUID, after, before int64) ([]*store.Message, error) {
	if _, err := s.GetModuleInfo(ctx, moduleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender, ts, contents FROM messages
		WHERE module_id = $1 AND id > $2 AND id < $3 AND deleted = false
		ORDER BY id DESC LIMIT 50`, moduleID, after, before)
	if err != nil {
		return nil, err
	}
	var out []*store.Message
	for rows.Next() {
		msg := &store.Message{ModuleID: moduleID}
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Timestamp, &msg.Contents); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	ids := make([]int64, len(out))
	for i, m := range out {
		ids[i] = m.ID
	}
	reactions, err := s.reactionsFor(ctx, moduleID, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range out {
		m.Reactions = reactions[m.ID]
	}
	return out, nil
}

func (s *Store) reactionsFor(ctx context.Context, moduleID uuid.UUID, ids []int64) (map[int64][]store.Reaction, error) {
	out := make(map[int64][]store.Reaction)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT message_id, user_id, emoji FROM reactions WHERE module_id = $1 AND message_id = ANY($2)`, moduleID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var r store.Reaction
		if err := rows.Scan(&id, &r.UserID, &r.Emoji); err != nil {
			return nil, err
		}
		out[id] = append(out[id], r)
	}
	return out, rows.Err()
}

func (s *Store) EditMessage(ctx context.Context, moduleID uuid.UUID, id int64, newContents string) (*store.Message, error) {
	var msg store.Message
	msg.ID, msg.ModuleID = id, moduleID
	var query string
	if newContents == "" {
		query = `UPDATE messages SET deleted = true, contents = '' WHERE module_id = $1 AND id = $2 AND deleted = false
			RETURNING sender, ts, contents, deleted`
	} else {
		query = `UPDATE messages SET contents = $3 WHERE module_id = $1 AND id = $2 AND deleted = false
			RETURNING sender, ts, contents, deleted`
	}
	var err error
	if newContents == "" {
		err = s.pool.QueryRow(ctx, query, moduleID, id).Scan(&msg.Sender, &msg.Timestamp, &msg.Contents, &msg.Deleted)
	} else {
		err = s.pool.QueryRow(ctx, query, moduleID, id, newContents).Scan(&msg.Sender, &msg.Timestamp, &msg.Contents, &msg.Deleted)
	}
	if err != nil {
		return nil, notFound(err)
	}
	reactions, err := s.reactionsFor(ctx, moduleID, []int64{id})
	if err != nil {
		return nil, err
	}
	msg.Reactions = reactions[id]
	return &msg, nil
}

func (s *Store) GetReactions(ctx context.Context, moduleID uuid.UUID, id int64) ([]store.Reaction, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT true FROM messages WHERE module_id = $1 AND id = $2`, moduleID, id).Scan(&exists); err != nil {
		return nil, notFound(err)
	}
	reactions, err := s.reactionsFor(ctx, moduleID, []int64{id})
	if err != nil {
		return nil, err
	}
	return reactions[id], nil
}

func (s *Store) SetReaction(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, reaction *string) ([]store.Reaction, error) {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM messages WHERE module_id = $1 AND id = $2`, moduleID, id).Scan(&exists); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM reactions WHERE module_id = $1 AND message_id = $2 AND user_id = $3`, moduleID, id, userID); err != nil {
			return err
		}
		if reaction == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `INSERT INTO reactions (module_id, message_id, user_id, emoji) VALUES ($1, $2, $3, $4)`,
			moduleID, id, userID, *reaction)
		return err
	})
	if err != nil {
		return nil, err
	}
	reactions, err := s.reactionsFor(ctx, moduleID, []int64{id})
	if err != nil {
		return nil, err
	}
	return reactions[id], nil
}

// ---- tasks ----

func (s *Store) CreateTask(ctx context.Context, moduleID uuid.UUID, description string, deadline int64) (*store.Task, error) {
	t := &store.Task{ModuleID: moduleID, Description: description, Deadline: deadline}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := s.nextModuleID(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		t.ID = id
		_, err = tx.Exec(ctx, `INSERT INTO tasks (module_id, id, description, deadline) VALUES ($1, $2, $3, $4)`,
			moduleID, t.ID, t.Description, t.Deadline)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTasks(ctx context.Context, moduleID uuid.UUID) ([]*store.Task, error) {
	if _, err := s.GetModuleInfo(ctx, moduleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT id, description, deadline, done FROM tasks WHERE module_id = $1`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Task
	for rows.Next() {
		t := &store.Task{ModuleID: moduleID}
		if err := rows.Scan(&t.ID, &t.Description, &t.Deadline, &t.Done); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTaskStatus(ctx context.Context, moduleID uuid.UUID, id int64, done bool) (*store.Task, error) {
	t := &store.Task{ID: id, ModuleID: moduleID, Done: done}
	err := s.pool.QueryRow(ctx, `UPDATE tasks SET done = $3 WHERE module_id = $1 AND id = $2 RETURNING description, deadline`,
		moduleID, id, done).Scan(&t.Description, &t.Deadline)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *Store) UpdateTaskDeadline(ctx context.Context, moduleID uuid.UUID, id int64, deadline int64) (*store.Task, error) {
	t := &store.Task{ID: id, ModuleID: moduleID, Deadline: deadline}
	err := s.pool.QueryRow(ctx, `UPDATE tasks SET deadline = $3 WHERE module_id = $1 AND id = $2 RETURNING description, done`,
		moduleID, id, deadline).Scan(&t.Description, &t.Done)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, moduleID uuid.UUID, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE module_id = $1 AND id = $2`, moduleID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- events ----

func (s *Store) CreateEvent(ctx context.Context, moduleID uuid.UUID, description string, start, end int64, approved bool) (*store.Event, error) {
	e := &store.Event{ModuleID: moduleID, Description: description, Start: start, End: end, Approved: approved}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := s.nextModuleID(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		e.ID = id
		_, err = tx.Exec(ctx, `INSERT INTO events (module_id, id, description, start_at, end_at, approved) VALUES ($1, $2, $3, $4, $5, $6)`,
			moduleID, e.ID, e.Description, e.Start, e.End, e.Approved)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) GetEvents(ctx context.Context, moduleID uuid.UUID) ([]*store.Event, error) {
	if _, err := s.GetModuleInfo(ctx, moduleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT id, description, start_at, end_at, approved, bulletin FROM events WHERE module_id = $1`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Event
	for rows.Next() {
		e := &store.Event{ModuleID: moduleID}
		if err := rows.Scan(&e.ID, &e.Description, &e.Start, &e.End, &e.Approved, &e.Bulletin); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ApproveEvent(ctx context.Context, moduleID uuid.UUID, id int64, approve bool) (*store.Event, bool, error) {
	var e store.Event
	e.ID, e.ModuleID = id, moduleID
	var deleted bool
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var approved bool
		err := tx.QueryRow(ctx, `SELECT description, start_at, end_at, approved, bulletin FROM events WHERE module_id = $1 AND id = $2`,
			moduleID, id).Scan(&e.Description, &e.Start, &e.End, &approved, &e.Bulletin)
		if err != nil {
			return notFound(err)
		}
		if approve {
			if _, err := tx.Exec(ctx, `UPDATE events SET approved = true WHERE module_id = $1 AND id = $2`, moduleID, id); err != nil {
				return err
			}
			e.Approved = true
			return nil
		}
		if !approved {
			_, err := tx.Exec(ctx, `DELETE FROM events WHERE module_id = $1 AND id = $2`, moduleID, id)
			deleted = true
			return err
		}
		e.Approved = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if deleted {
		return nil, true, nil
	}
	return &e, false, nil
}

func (s *Store) EditEvent(ctx context.Context, moduleID uuid.UUID, id int64, description string, start, end int64) (*store.Event, error) {
	e := &store.Event{ID: id, ModuleID: moduleID, Description: description, Start: start, End: end}
	err := s.pool.QueryRow(ctx, `UPDATE events SET description = $3, start_at = $4, end_at = $5 WHERE module_id = $1 AND id = $2
		RETURNING approved, bulletin`, moduleID, id, description, start, end).Scan(&e.Approved, &e.Bulletin)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Store) DeleteEvent(ctx context.Context, moduleID uuid.UUID, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE module_id = $1 AND id = $2`, moduleID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetBulletinEvent(ctx context.Context, moduleID uuid.UUID, id int64, bulletin bool) (*store.Event, error) {
	e := &store.Event{ID: id, ModuleID: moduleID, Bulletin: bulletin}
	err := s.pool.QueryRow(ctx, `UPDATE events SET bulletin = $3 WHERE module_id = $1 AND id = $2
		RETURNING description, start_at, end_at, approved`, moduleID, id, bulletin).
		Scan(&e.Description, &e.Start, &e.End, &e.Approved)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ---- polls ----

func (s *Store) CreatePoll(ctx context.Context, moduleID uuid.UUID, description string, options []string) (*store.Poll, error) {
	p := &store.Poll{ModuleID: moduleID, Description: description, Options: options, Votes: map[uuid.UUID]int{}}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := s.nextModuleID(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		p.ID = id
		_, err = tx.Exec(ctx, `INSERT INTO polls (module_id, id, description, options) VALUES ($1, $2, $3, $4)`,
			moduleID, p.ID, p.Description, p.Options)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPolls(ctx context.Context, moduleID uuid.UUID) ([]*store.Poll, error) {
	if _, err := s.GetModuleInfo(ctx, moduleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT id, description, options FROM polls WHERE module_id = $1`, moduleID)
	if err != nil {
		return nil, err
	}
	var out []*store.Poll
	for rows.Next() {
		p := &store.Poll{ModuleID: moduleID, Votes: map[uuid.UUID]int{}}
		if err := rows.Scan(&p.ID, &p.Description, &p.Options); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range out {
		votes, err := s.loadVotes(ctx, moduleID, p.ID)
		if err != nil {
			return nil, err
		}
		p.Votes = votes
	}
	return out, nil
}

func (s *Store) loadVotes(ctx context.Context, moduleID uuid.UUID, pollID int64) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, option FROM poll_votes WHERE module_id = $1 AND poll_id = $2`, moduleID, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	votes := make(map[uuid.UUID]int)
	for rows.Next() {
		var uid uuid.UUID
		var opt int
		if err := rows.Scan(&uid, &opt); err != nil {
			return nil, err
		}
		votes[uid] = opt
	}
	return votes, rows.Err()
}

func (s *Store) Vote(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, option int) (*store.Poll, error) {
	p := &store.Poll{ID: id, ModuleID: moduleID}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT description, options FROM polls WHERE module_id = $1 AND id = $2`, moduleID, id).
			Scan(&p.Description, &p.Options); err != nil {
			return notFound(err)
		}
		if option < 0 || option >= len(p.Options) {
			return store.ErrNotFound
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO poll_votes (module_id, poll_id, user_id, option) VALUES ($1, $2, $3, $4)
			ON CONFLICT (module_id, poll_id, user_id) DO UPDATE SET option = EXCLUDED.option`,
			moduleID, id, userID, option)
		return err
	})
	if err != nil {
		return nil, err
	}
	votes, err := s.loadVotes(ctx, moduleID, id)
	if err != nil {
		return nil, err
	}
	p.Votes = votes
	return p, nil
}

// mustAffectOne runs an UPDATE expected to touch exactly the row named by the first argument, translating zero rows
// affected into store.ErrNotFound.
func (s *Store) mustAffectOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting scanAccount run inside or outside a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
