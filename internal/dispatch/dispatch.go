// Package dispatch implements the authenticated request vocabulary of the protocol: given an actor, a request
// kind, and its JSON payload, it validates authorization against the Store, performs the operation, and reports which
// other users (if any) must receive a push as a side effect.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
)

// Push describes a side-effect notification the caller (the connection pump) must deliver after the handler's Store
// writes have committed.
type Push struct {
	UserID uuid.UUID // direct recipient; zero value means GroupID fan-out
	GroupID uuid.UUID
	Kind   string
	Data   any
}

// Dispatcher holds the Store and the limits that bound the authenticated surface.
type Dispatcher struct {
	Store              store.Store
	Sanitizer          *bluemonday.Policy
	MaxMessagesPerPage int
	UploadDir          string
	MaxUploadBytes     int64
}

// New creates a Dispatcher.
func New(s store.Store, maxMessagesPerPage int, uploadDir string, maxUploadBytes int64) *Dispatcher {
	return &Dispatcher{
		Store:              s,
		Sanitizer:          bluemonday.StrictPolicy(),
		MaxMessagesPerPage: maxMessagesPerPage,
		UploadDir:          uploadDir,
		MaxUploadBytes:     maxUploadBytes,
	}
}

// CheckInviteLink is state-independent (always accepted, never alters connection state) so the pump calls it
// directly rather than through Handle.
func (d *Dispatcher) CheckInviteLink(ctx context.Context, data json.RawMessage) (any, error) {
	return d.checkInviteLink(ctx, data)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return protoerr.Request("malformed request data")
	}
	return nil
}

// requireRole fetches actor's role in groupID and requires it to be at least min.
func (d *Dispatcher) requireRole(ctx context.Context, groupID, actorID uuid.UUID, min store.Role) (store.Role, error) {
	role, err := d.Store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return 0, protoerr.Request("not a member of this group")
	}
	if role < min {
		return 0, protoerr.Request("insufficient role")
	}
	return role, nil
}

// Handle dispatches one authenticated request. It returns the reply payload and any pushes that must be delivered
// once the reply has been sent. Unrecognized kinds return a RequestError, not an UnauthorizedError — only requests
// made from the wrong login state force logout.
func (d *Dispatcher) Handle(ctx context.Context, actorID uuid.UUID, kind string, data json.RawMessage) (any, []Push, error) {
	switch kind {
	case "getTwoFactor":
		return d.getTwoFactor(ctx, actorID)
	case "setTwoFactor":
		return d.setTwoFactor(ctx, actorID, data)
	case "createGroup":
		return d.createGroup(ctx, actorID, data)
	case "createSubGroup":
		return d.createSubGroup(ctx, actorID, data)
	case "getGroups":
		return d.getGroups(ctx, actorID)
	case "getGroupInfo":
		return d.getGroupInfo(ctx, actorID, data)
	case "createModule":
		return d.createModule(ctx, actorID, data)
	case "setRequireApproval":
		return d.setRequireApproval(ctx, actorID, data)
	case "setModuleEnabled":
		return d.setModuleEnabled(ctx, actorID, data)
	case "getUsers":
		return d.getUsers(ctx, actorID, data)
	case "getUserInfo":
		return d.getUserInfo(ctx, actorID, data)
	case "getModules":
		return d.getModules(ctx, actorID, data)
	case "getModuleInfo":
		return d.getModuleInfo(ctx, actorID, data)
	case "createInviteLink":
		return d.createInviteLink(ctx, actorID, data)
	case "useInviteLink":
		return d.useInviteLink(ctx, actorID, data)
	case "sendInvite":
		return d.sendInvite(ctx, actorID, data)
	case "getInvites":
		return d.getInvites(ctx, actorID)
	case "replyToInvite":
		return d.replyToInvite(ctx, actorID, data)
	case "leaveGroup":
		return d.leaveGroup(ctx, actorID, data)
	case "kick":
		return d.kick(ctx, actorID, data)
	case "setRole":
		return d.setRole(ctx, actorID, data)
	case "setMuted":
		return d.setMuted(ctx, actorID, data)
	case "sendMessage":
		return d.sendMessage(ctx, actorID, data)
	case "getMessages":
		return d.getMessages(ctx, actorID, data)
	case "updateMessage":
		return d.updateMessage(ctx, actorID, data)
	case "setReaction":
		return d.setReaction(ctx, actorID, data)
	case "addTask":
		return d.addTask(ctx, actorID, data)
	case "getTasks":
		return d.getTasks(ctx, actorID, data)
	case "updateTaskStatus":
		return d.updateTaskStatus(ctx, actorID, data)
	case "updateTaskDeadline":
		return d.updateTaskDeadline(ctx, actorID, data)
	case "deleteTask":
		return d.deleteTask(ctx, actorID, data)
	case "addEvent":
		return d.addEvent(ctx, actorID, data)
	case "getEvents":
		return d.getEvents(ctx, actorID, data)
	case "approveEvent":
		return d.approveEvent(ctx, actorID, data)
	case "updateEvent":
		return d.updateEvent(ctx, actorID, data)
	case "deleteEvent":
		return d.deleteEvent(ctx, actorID, data)
	case "setBulletin":
		return d.setBulletin(ctx, actorID, data)
	case "addPoll":
		return d.addPoll(ctx, actorID, data)
	case "getPolls":
		return d.getPolls(ctx, actorID, data)
	case "voteOnPoll":
		return d.voteOnPoll(ctx, actorID, data)
	case "uploadFile":
		return d.uploadFile(ctx, actorID, data)
	default:
		return nil, nil, protoerr.Requestf("unknown request kind %q", kind)
	}
}
