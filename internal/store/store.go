// Package store defines the persistence contract the dispatcher relies on. Concrete implementations live in
// internal/store/postgres (production) and internal/store/memory (tests).
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors every Store implementation returns for the preconditions the dispatcher checks.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotMember      = errors.New("not a member of this group")
	ErrWrongRole      = errors.New("insufficient role")
	ErrWrongModule    = errors.New("wrong module type")
	ErrAlreadyInvited = errors.New("already invited")
)

// Role is a group member's role. Roles are totally ordered: RoleOwner > RoleModerator > RoleUser.
type Role int

const (
	RoleUser Role = iota
	RoleModerator
	RoleOwner
)

// String renders the role the way it appears on the wire.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleModerator:
		return "moderator"
	default:
		return "user"
	}
}

// ParseRole parses the wire representation of a role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "owner":
		return RoleOwner, true
	case "moderator":
		return RoleModerator, true
	case "user":
		return RoleUser, true
	default:
		return 0, false
	}
}

// ModuleType identifies which item collection a module holds.
type ModuleType string

const (
	ModuleChat   ModuleType = "chat"
	ModuleTask   ModuleType = "task"
	ModuleCal    ModuleType = "cal"
	ModulePoll   ModuleType = "poll"
	ModuleCustom ModuleType = "custom"
)

// Account is a registered user.
type Account struct {
	ID               uuid.UUID
	Email            string
	Name             string
	PasswordHash     string
	TwoFactorEnabled bool
	AuthToken        string
}

// Member is one user's membership record within a group.
type Member struct {
	UserID uuid.UUID
	Name   string
	Role   Role
	Muted  bool
}

// Group is a collection of users sharing modules.
type Group struct {
	ID              uuid.UUID
	Name            string
	Members         []Member
	RequireApproval bool
	Modules         []uuid.UUID
	ModifiedAt      int64
}

// Module is a typed container within a group.
type Module struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Type       ModuleType
	Name       string
	Enabled    bool
	ModifiedAt int64
}

// Reaction is one user's reaction to a message.
type Reaction struct {
	UserID uuid.UUID
	Emoji  string
}

// Message is a chat item.
type Message struct {
	ID        int64
	ModuleID  uuid.UUID
	Sender    uuid.UUID
	Timestamp int64
	Contents  string
	Deleted   bool
	Reactions []Reaction
}

// Task is a task-list item.
type Task struct {
	ID          int64
	ModuleID    uuid.UUID
	Description string
	Deadline    int64
	Done        bool
}

// Event is a calendar item.
type Event struct {
	ID          int64
	ModuleID    uuid.UUID
	Description string
	Start       int64
	End         int64
	Approved    bool
	Bulletin    bool
}

// Poll is a poll-list item.
type Poll struct {
	ID          int64
	ModuleID    uuid.UUID
	Description string
	Options     []string
	Votes       map[uuid.UUID]int
}

// Invite is a pending invitation to join a group.
type Invite struct {
	UserID      uuid.UUID
	GroupID     uuid.UUID
	GroupName   string
	InviterName string
}

// InviteLink is a shareable join code.
type InviteLink struct {
	Code     string
	GroupID  uuid.UUID
	ExpireAt int64 // 0 means never
}

// Store is the persistence contract the dispatcher depends on. Every method may block; callers pass a context so a
// connection close can cancel an in-flight call.
type Store interface {
	Initialize(ctx context.Context) error
	Close() error

	LookupAccount(ctx context.Context, email string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	CreateAccount(ctx context.Context, name, email, passwordHash string) (*Account, error)
	ResetPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	GetTwoFactor(ctx context.Context, userID uuid.UUID) (bool, error)
	SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool) error
	GetAuthToken(ctx context.Context, userID uuid.UUID) (string, error)
	SetAuthToken(ctx context.Context, userID uuid.UUID, token string) error

	CreateGroup(ctx context.Context, ownerID uuid.UUID, ownerName, name string) (*Group, error)
	CreateSubGroup(ctx context.Context, parentGroupID, ownerID uuid.UUID, ownerName, name string, memberIDs []uuid.UUID, memberNames map[uuid.UUID]string) (*Group, error)
	GetGroups(ctx context.Context, userID uuid.UUID) ([]*Group, error)
	GetGroupInfo(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID, lastRefresh int64) ([]*Group, error)
	GetGroupName(ctx context.Context, groupID uuid.UUID) (string, error)
	GetGroupRequireApproval(ctx context.Context, groupID uuid.UUID) (bool, error)

	CheckUserInGroup(ctx context.Context, groupID, userID uuid.UUID) (*Member, error)
	GetRole(ctx context.Context, groupID, userID uuid.UUID) (Role, error)
	GetMuted(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	GetUsers(ctx context.Context, groupID uuid.UUID) ([]Member, error)
	GetUserInfo(ctx context.Context, groupID, userID uuid.UUID) (*Member, error)
	GetUserName(ctx context.Context, userID uuid.UUID) (string, error)

	SetRole(ctx context.Context, groupID, actorID, targetID uuid.UUID, role Role) (ownerTransferred bool, err error)
	SetMuted(ctx context.Context, groupID, targetID uuid.UUID, muted bool) error
	Kick(ctx context.Context, groupID, targetID uuid.UUID) error
	LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) (groupDeleted bool, err error)

	CreateModule(ctx context.Context, groupID uuid.UUID, name string, moduleType ModuleType) (*Module, error)
	GetModules(ctx context.Context, groupID uuid.UUID) ([]*Module, error)
	GetModuleInfo(ctx context.Context, moduleID uuid.UUID) (*Module, error)
	CheckModuleInGroup(ctx context.Context, moduleType ModuleType, moduleID, groupID uuid.UUID) error
	SetRequireApproval(ctx context.Context, groupID uuid.UUID, require bool) error
	SetModuleEnabled(ctx context.Context, groupID, moduleID uuid.UUID, enabled bool) error

	AddGroupInviteCode(ctx context.Context, groupID uuid.UUID, code string, expireAt int64) error
	CheckInviteCode(ctx context.Context, code string) (*InviteLink, error)
	JoinGroup(ctx context.Context, groupID, userID uuid.UUID, name string) error
	SendInvite(ctx context.Context, groupID, targetID uuid.UUID, groupName, inviterName string) (alreadyPending bool, err error)
	GetInvites(ctx context.Context, userID uuid.UUID) ([]*Invite, error)
	ReplyToInvite(ctx context.Context, groupID, userID uuid.UUID, accept bool, name string) error

	SendMessage(ctx context.Context, moduleID, sender uuid.UUID, contents string) (*Message, error)
	GetMessages(ctx context.Context, moduleID uuid.UUID, after, before int64) ([]*Message, error)
	EditMessage(ctx context.Context, moduleID uuid.UUID, id int64, newContents string) (*Message, error)
	GetReactions(ctx context.Context, moduleID uuid.UUID, id int64) ([]Reaction, error)
	SetReaction(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, reaction *string) ([]Reaction, error)

	CreateTask(ctx context.Context, moduleID uuid.UUID, description string, deadline int64) (*Task, error)
	GetTasks(ctx context.Context, moduleID uuid.UUID) ([]*Task, error)
	UpdateTaskStatus(ctx context.Context, moduleID uuid.UUID, id int64, done bool) (*Task, error)
	UpdateTaskDeadline(ctx context.Context, moduleID uuid.UUID, id int64, deadline int64) (*Task, error)
	DeleteTask(ctx context.Context, moduleID uuid.UUID, id int64) error

	CreateEvent(ctx context.Context, moduleID uuid.UUID, description string, start, end int64, approved bool) (*Event, error)
	GetEvents(ctx context.Context, moduleID uuid.UUID) ([]*Event, error)
	ApproveEvent(ctx context.Context, moduleID uuid.UUID, id int64, approve bool) (*Event, deleted bool, err error)
	EditEvent(ctx context.Context, moduleID uuid.UUID, id int64, description string, start, end int64) (*Event, error)
	DeleteEvent(ctx context.Context, moduleID uuid.UUID, id int64) error
	SetBulletinEvent(ctx context.Context, moduleID uuid.UUID, id int64, bulletin bool) (*Event, error)

	CreatePoll(ctx context.Context, moduleID uuid.UUID, description string, options []string) (*Poll, error)
	GetPolls(ctx context.Context, moduleID uuid.UUID) ([]*Poll, error)
	Vote(ctx context.Context, moduleID uuid.UUID, id int64, userID uuid.UUID, option int) (*Poll, error)
}
