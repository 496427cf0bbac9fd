// Package memory implements store.Store in-process, for use in tests that exercise the dispatcher without a
// PostgreSQL instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/store"
)

type group struct {
	id              uuid.UUID
	name            string
	members         map[uuid.UUID]*store.Member
	requireApproval bool
	modules         []uuid.UUID
	modifiedAt      int64
}

type module struct {
	id         uuid.UUID
	groupID    uuid.UUID
	typ        store.ModuleType
	name       string
	enabled    bool
	modifiedAt int64

	nextID   int64
	messages map[int64]*store.Message
	tasks    map[int64]*store.Task
	events   map[int64]*store.Event
	polls    map[int64]*store.Poll
}

// Store is an in-memory store.Store implementation guarded by a single mutex.
type Store struct {
	mu sync.Mutex

	accountsByID    map[uuid.UUID]*store.Account
	accountsByEmail map[string]uuid.UUID

	groups  map[uuid.UUID]*group
	modules map[uuid.UUID]*module

	invites     map[uuid.UUID]map[uuid.UUID]*store.Invite // groupID -> userID -> invite
	inviteLinks map[string]*store.InviteLink
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		accountsByID:    make(map[uuid.UUID]*store.Account),
		accountsByEmail: make(map[string]uuid.UUID),
		groups:          make(map[uuid.UUID]*group),
		modules:         make(map[uuid.UUID]*module),
		invites:         make(map[uuid.UUID]map[uuid.UUID]*store.Invite),
		inviteLinks:     make(map[string]*store.InviteLink),
	}
}

func (s *Store) Initialize(ctx context.Context) error { return nil }
func (s *Store) Close() error                          { return nil }

func now() int64 { return time.Now().UnixMilli() }

func (s *Store) LookupAccount(ctx context.Context, email string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.accountsByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	acc := *s.accountsByID[id]
	return &acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *Store) CreateAccount(ctx context.Context, name, email, passwordHash string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accountsByEmail[email]; ok {
		return nil, store.ErrAlreadyExists
	}
	acc := &store.Account{ID: uuid.New(), Email: email, Name: name, PasswordHash: passwordHash}
	s.accountsByID[acc.ID] = acc
	s.accountsByEmail[email] = acc.ID
	cp := *acc
	return &cp, nil
}

func (s *Store) ResetPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.PasswordHash = passwordHash
	return nil
}

func (s *Store) GetTwoFactor(ctx context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return false, store.ErrNotFound
	}
	return acc.TwoFactorEnabled, nil
}

func (s *Store) SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.TwoFactorEnabled = enabled
	return nil
}

func (s *Store) GetAuthToken(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return acc.AuthToken, nil
}

func (s *Store) SetAuthToken(ctx context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.AuthToken = token
	return nil
}

func (s *Store) CreateGroup(ctx context.Context, ownerID uuid.UUID, ownerName, name string) (*store.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &group{
		id:      uuid.New(),
		name:    name,
		members: map[uuid.UUID]*store.Member{ownerID: {UserID: ownerID, Name: ownerName, Role: store.RoleOwner}},
		modifiedAt: now(),
	}
	s.groups[g.id] = g
	return s.snapshotGroup(g), nil
}

func (s *Store) CreateSubGroup(ctx context.Context, parentGroupID, ownerID uuid.UUID, ownerName, name string, memberIDs []uuid.UUID, memberNames map[uuid.UUID]string) (*store.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.groups[parentGroupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	g := &group{
		id:              uuid.New(),
		name:            name,
		members:         map[uuid.UUID]*store.Member{ownerID: {UserID: ownerID, Name: ownerName, Role: store.RoleOwner}},
		requireApproval: parent.requireApproval,
		modifiedAt:      now(),
	}
	for _, id := range memberIDs {
		if id == ownerID {
			continue
		}
		g.members[id] = &store.Member{UserID: id, Name: memberNames[id], Role: store.RoleUser}
	}
	s.groups[g.id] = g
	return s.snapshotGroup(g), nil
}

func (s *Store) snapshotGroup(g *group) *store.Group {
	out := &store.Group{ID: g.id, Name: g.name, RequireApproval: g.requireApproval, Modules: append([]uuid.UUID{}, g.modules...), ModifiedAt: g.modifiedAt}
	for _, m := range g.members {
		mc := *m
		out.Members = append(out.Members, mc)
	}
	return out
}

func (s *Store) GetGroups(ctx context.Context, userID uuid.UUID) ([]*store.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Group
	for _, g := range s.groups {
		if _, ok := g.members[userID]; ok {
			out = append(out, s.snapshotGroup(g))
		}
	}
	return out, nil
}

func (s *Store) GetGroupInfo(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID, lastRefresh int64) ([]*store.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Group
	for _, gid := range groupIDs {
		g, ok := s.groups[gid]
		if !ok {
			continue
		}
		if _, member := g.members[userID]; !member {
			continue
		}
		if g.modifiedAt <= lastRefresh {
			continue
		}
		out = append(out, s.snapshotGroup(g))
	}
	return out, nil
}

func (s *Store) GetGroupName(ctx context.Context, groupID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return "", store.ErrNotFound
	}
	return g.name, nil
}

func (s *Store) GetGroupRequireApproval(ctx context.Context, groupID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, store.ErrNotFound
	}
	return g.requireApproval, nil
}

func (s *Store) CheckUserInGroup(ctx context.Context, groupID, userID uuid.UUID) (*store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m, ok := g.members[userID]
	if !ok {
		return nil, store.ErrNotMember
	}
	cp := *m
	return &cp, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []store.Member
	for _, m := range g.members {
		out = append(out, *m)
	}
	return out, nil
}

func (s *Store) GetUserInfo(ctx context.Context, groupID, userID uuid.UUID) (*store.Member, error) {
	return s.CheckUserInGroup(ctx, groupID, userID)
}

func (s *Store) GetUserName(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountsByID[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return acc.Name, nil
}

func (s *Store) SetRole(ctx context.Context, groupID, actorID, targetID uuid.UUID, role store.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, store.ErrNotFound
	}
	target, ok := g.members[targetID]
	if !ok {
		return false, store.ErrNotMember
	}
	transferred := false
	if role == store.RoleOwner {
		if actor, ok := g.members[actorID]; ok {
			actor.Role = store.RoleModerator
		}
		transferred = true
	}
	target.Role = role
	g.modifiedAt = now()
	return transferred, nil
}

func (s *Store) SetMuted(ctx context.Context, groupID, targetID uuid.UUID, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return store.ErrNotFound
	}
	target, ok := g.members[targetID]
	if !ok {
		return store.ErrNotMember
	}
	target.Muted = muted
	return nil
}

func (s *Store) Kick(ctx context.Context, groupID, targetID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := g.members[targetID]; !ok {
		return store.ErrNotMember
	}
	delete(g.members, targetID)
	g.modifiedAt = now()
	return nil
}

func (s *Store) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, store.ErrNotFound
	}
	if _, ok := g.members[userID]; !ok {
		return false, store.ErrNotMember
	}
	delete(g.members, userID)
	if len(g.members) == 0 {
		for _, mid := range g.modules {
			delete(s.modules, mid)
		}
		delete(s.groups, groupID)
		delete(s.invites, groupID)
		for code, link := range s.inviteLinks {
			if link.GroupID == groupID {
				delete(s.inviteLinks, code)
			}
		}
		return true, nil
	}
	g.modifiedAt = now()
	return false, nil
}

func (s *Store) CreateModule(ctx context.Context, groupID uuid.UUID, name string, moduleType store.ModuleType) (*store.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m := &module{
		id: uuid.New(), groupID: groupID, typ: moduleType, name: name, enabled: true, modifiedAt: now(),
		messages: make(map[int64]*store.Message), tasks: make(map[int64]*store.Task),
		events: make(map[int64]*store.Event), polls: make(map[int64]*store.Poll),
	}
	s.modules[m.id] = m
	g.modules = append(g.modules, m.id)
	g.modifiedAt = now()
	return s.snapshotModule(m), nil
}

func (s *Store) snapshotModule(m *module) *store.Module {
	return &store.Module{ID: m.id, GroupID: m.groupID, Type: m.typ, Name: m.name, Enabled: m.enabled, ModifiedAt: m.modifiedAt}
}

func (s *Store) GetModules(ctx context.Context, groupID uuid.UUID) ([]*store.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Module
	for _, mid := range g.modules {
		out = append(out, s.snapshotModule(s.modules[mid]))
	}
	return out, nil
}

func (s *Store) GetModuleInfo(ctx context.Context, moduleID uuid.UUID) (*store.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.snapshotModule(m), nil
}

func (s *Store) CheckModuleInGroup(ctx context.Context, moduleType store.ModuleType, moduleID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok || m.groupID != groupID {
		return store.ErrNotFound
	}
	if m.typ != moduleType {
		return store.ErrWrongModule
	}
	return nil
}

func (s *Store) SetRequireApproval(ctx context.Context, groupID uuid.UUID, require bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return store.ErrNotFound
	}
	g.requireApproval = require
	g.modifiedAt = now()
	return nil
}

func (s *Store) SetModuleEnabled(ctx context.Context, groupID, moduleID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok || m.groupID != groupID {
		return store.ErrNotFound
	}
	m.enabled = enabled
	m.modifiedAt = now()
	return nil
}

func (s *Store) AddGroupInviteCode(ctx context.Context, groupID uuid.UUID, code string, expireAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return store.ErrNotFound
	}
	s.inviteLinks[code] = &store.InviteLink{Code: code, GroupID: groupID, ExpireAt: expireAt}
	return nil
}

func (s *Store) CheckInviteCode(ctx context.Context, code string) (*store.InviteLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.inviteLinks[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (s *Store) JoinGroup(ctx context.Context, groupID, userID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := g.members[userID]; ok {
		return store.ErrAlreadyExists
	}
	g.members[userID] = &store.Member{UserID: userID, Name: name, Role: store.RoleUser}
	g.modifiedAt = now()
	return nil
}

func (s *Store) SendInvite(ctx context.Context, groupID, targetID uuid.UUID, groupName, inviterName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, store.ErrNotFound
	}
	if _, ok := g.members[targetID]; ok {
		return false, store.ErrAlreadyExists
	}
	byGroup := s.invites[groupID]
	if byGroup == nil {
		byGroup = make(map[uuid.UUID]*store.Invite)
		s.invites[groupID] = byGroup
	}
	if _, ok := byGroup[targetID]; ok {
		return true, nil
	}
	byGroup[targetID] = &store.Invite{UserID: targetID, GroupID: groupID, GroupName: groupName, InviterName: inviterName}
	return false, nil
}

func (s *Store) GetInvites(ctx context.Context, userID uuid.UUID) ([]*store.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Invite
	for _, byGroup := range s.invites {
		if inv, ok := byGroup[userID]; ok {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ReplyToInvite(ctx context.Context, groupID, userID uuid.UUID, accept bool, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byGroup := s.invites[groupID]
	if byGroup == nil {
		return store.ErrNotFound
	}
	if _, ok := byGroup[userID]; !ok {
		return store.ErrNotFound
	}
	delete(byGroup, userID)
	if accept {
		g, ok := s.groups[groupID]
		if !ok {
			return store.ErrNotFound
		}
		g.members[userID] = &store.Member{UserID: userID, Name: name, Role: store.RoleUser}
		g.modifiedAt = now()
	}
	return nil
}

func (s *Store) SendMessage(ctx context.Context, moduleID, sender uuid.UUID, contents string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.nextID++
	msg := &store.Message{ID: m.nextID, ModuleID: moduleID, Sender: sender, Timestamp: now(), Contents: contents}
	m.messages[msg.ID] = msg
	cp := *msg
	return &cp, nil
}

func (s *Store) GetMessages(ctx context.Context, moduleID uuid.UUID, after, before int64) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Message
	for id := after + 1; id < before && id <= m.nextID; id++ {
		if msg, ok := m.messages[id]; ok && !msg.Deleted {
			cp := *msg
			out = append(out, &cp)
		}
	}
	if len(out) > 50 {
		out = out[len(out)-50:]
	}
	return out, nil
}

func (s *Store) EditMessage(ctx context.Context, moduleID uuid.UUID, id int64, newContents string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg, ok := m.messages[id]
	if !ok || msg.Deleted {
		return nil, store.ErrNotFound
	}
	if newContents == "" {
		msg.Deleted = true
		msg.Contents = ""
	} else {
		msg.Contents = newContents
	}
	cp := *msg
	return &cp, nil
}

func (s *Store) GetReactions(ctx context.Context, moduleID uuid.UUID, id int64) ([]store.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]store.Reaction{}, msg.Reactions...), nil
}

func (s *Store) SetReaction(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, reaction *string) ([]store.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	filtered := msg.Reactions[:0]
	for _, r := range msg.Reactions {
		if r.UserID != userID {
			filtered = append(filtered, r)
		}
	}
	msg.Reactions = filtered
	if reaction != nil {
		msg.Reactions = append(msg.Reactions, store.Reaction{UserID: userID, Emoji: *reaction})
	}
	return append([]store.Reaction{}, msg.Reactions...), nil
}

func (s *Store) CreateTask(ctx context.Context, moduleID uuid.UUID, description string, deadline int64) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.nextID++
	t := &store.Task{ID: m.nextID, ModuleID: moduleID, Description: description, Deadline: deadline}
	m.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *Store) GetTasks(ctx context.Context, moduleID uuid.UUID) ([]*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Task
	for _, t := range m.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, moduleID uuid.UUID, id int64, done bool) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.Done = done
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTaskDeadline(ctx context.Context, moduleID uuid.UUID, id int64, deadline int64) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.Deadline = deadline
	cp := *t
	return &cp, nil
}

func (s *Store) DeleteTask(ctx context.Context, moduleID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := m.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, moduleID uuid.UUID, description string, start, end int64, approved bool) (*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.nextID++
	e := &store.Event{ID: m.nextID, ModuleID: moduleID, Description: description, Start: start, End: end, Approved: approved}
	m.events[e.ID] = e
	cp := *e
	return &cp, nil
}

func (s *Store) GetEvents(ctx context.Context, moduleID uuid.UUID) ([]*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Event
	for _, e := range m.events {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ApproveEvent(ctx context.Context, moduleID uuid.UUID, id int64, approve bool) (*store.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	e, ok := m.events[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if approve {
		e.Approved = true
		cp := *e
		return &cp, false, nil
	}
	if !e.Approved {
		delete(m.events, id)
		return nil, true, nil
	}
	cp := *e
	return &cp, false, nil
}

func (s *Store) EditEvent(ctx context.Context, moduleID uuid.UUID, id int64, description string, start, end int64) (*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	e.Description, e.Start, e.End = description, start, end
	cp := *e
	return &cp, nil
}

func (s *Store) DeleteEvent(ctx context.Context, moduleID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := m.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (s *Store) SetBulletinEvent(ctx context.Context, moduleID uuid.UUID, id int64, bulletin bool) (*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	e.Bulletin = bulletin
	cp := *e
	return &cp, nil
}

func (s *Store) CreatePoll(ctx context.Context, moduleID uuid.UUID, description string, options []string) (*store.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.nextID++
	p := &store.Poll{ID: m.nextID, ModuleID: moduleID, Description: description, Options: options, Votes: make(map[uuid.UUID]int)}
	m.polls[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *Store) GetPolls(ctx context.Context, moduleID uuid.UUID) ([]*store.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Poll
	for _, p := range m.polls {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Vote(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, option int) (*store.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := m.polls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if option < 0 || option >= len(p.Options) {
		return nil, store.ErrNotFound
	}
	p.Votes[userID] = option
	cp := *p
	return &cp, nil
}
