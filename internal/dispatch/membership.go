package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/crypto"
	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

const inviteLinkCodeLength = 10

func (d *Dispatcher) createInviteLink(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Expire int64  `json:"expire"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}

	expire := req.Expire
	if expire != 0 {
		minExpire := time.Now().Add(2 * time.Minute).UnixMilli()
		if expire < minExpire {
			expire = minExpire
		}
	}

	code, err := crypto.HumanCode(inviteLinkCodeLength)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	if err := d.Store.AddGroupInviteCode(ctx, groupID, code, expire); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"link": code}, nil, nil
}

func (d *Dispatcher) useInviteLink(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Link string `json:"link"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	link, err := d.Store.CheckInviteCode(ctx, req.Link)
	if err != nil {
		return map[string]any{"id": nil}, nil, nil
	}
	if link.ExpireAt != 0 {
		grace := time.UnixMilli(link.ExpireAt).Add(30 * time.Second)
		if time.Now().After(grace) {
			return map[string]any{"id": nil}, nil, nil
		}
	}

	name, err := d.Store.GetUserName(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	if err := d.Store.JoinGroup(ctx, link.GroupID, actorID, name); err != nil {
		if err == store.ErrAlreadyExists {
			return map[string]any{"id": link.GroupID}, nil, nil
		}
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"id": link.GroupID}, nil, nil
}

func (d *Dispatcher) checkInviteLink(ctx context.Context, data json.RawMessage) (any, error) {
	var req struct {
		Link string `json:"link"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, err
	}
	link, err := d.Store.CheckInviteCode(ctx, req.Link)
	if err != nil {
		return map[string]any{"valid": false}, nil
	}
	name, err := d.Store.GetGroupName(ctx, link.GroupID)
	if err != nil {
		return map[string]any{"valid": false}, nil
	}
	return map[string]any{"valid": true, "name": name, "expire": link.ExpireAt}, nil
}

func (d *Dispatcher) sendInvite(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string `json:"group"`
		Email string `json:"email"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}

	target, err := d.Store.LookupAccount(ctx, req.Email)
	if err != nil {
		return nil, nil, protoerr.Request("no account with that email")
	}
	inviterName, err := d.Store.GetUserName(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	groupName, err := d.Store.GetGroupName(ctx, groupID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}

	alreadyPending, err := d.Store.SendInvite(ctx, groupID, target.ID, groupName, inviterName)
	if err != nil {
		if err == store.ErrAlreadyExists {
			return nil, nil, protoerr.Request("user is already a member")
		}
		return nil, nil, protoerr.Internal(err)
	}
	if alreadyPending {
		return map[string]any{"sent": true}, nil, nil
	}
	push := Push{UserID: target.ID, Kind: wire.EventInvite, Data: map[string]any{"group": groupID, "groupName": groupName, "inviterName": inviterName}}
	return map[string]any{"sent": true}, []Push{push}, nil
}

func (d *Dispatcher) getInvites(ctx context.Context, actorID uuid.UUID) (any, []Push, error) {
	invites, err := d.Store.GetInvites(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return invites, nil, nil
}

func (d *Dispatcher) replyToInvite(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Accept bool   `json:"accept"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	name, err := d.Store.GetUserName(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	if err := d.Store.ReplyToInvite(ctx, groupID, actorID, req.Accept, name); err != nil {
		return nil, nil, protoerr.Request("no such invite")
	}
	return map[string]any{}, nil, nil
}

func (d *Dispatcher) leaveGroup(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string `json:"group"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}

	role, err := d.Store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	if role == store.RoleOwner {
		members, err := d.Store.GetUsers(ctx, groupID)
		if err != nil {
			return nil, nil, protoerr.Internal(err)
		}
		if len(members) > 1 {
			return nil, nil, protoerr.Request("the owner cannot leave a group with other members")
		}
	}

	if _, err := d.Store.LeaveGroup(ctx, groupID, actorID); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, nil, nil
}

func (d *Dispatcher) kick(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Target string `json:"target"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	targetID, err := uuid.Parse(req.Target)
	if err != nil {
		return nil, nil, protoerr.Request("invalid target id")
	}
	actorRole, err := d.Store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	targetRole, err := d.Store.GetRole(ctx, groupID, targetID)
	if err != nil {
		return nil, nil, protoerr.Request("unknown target")
	}
	if actorRole <= targetRole {
		return nil, nil, protoerr.Request("insufficient role")
	}
	if err := d.Store.Kick(ctx, groupID, targetID); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, []Push{{UserID: targetID, Kind: wire.EventKicked, Data: map[string]any{"group": groupID}}}, nil
}

func (d *Dispatcher) setRole(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Target string `json:"target"`
		Role   string `json:"role"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	targetID, err := uuid.Parse(req.Target)
	if err != nil {
		return nil, nil, protoerr.Request("invalid target id")
	}
	if targetID == actorID {
		return nil, nil, protoerr.Request("cannot change your own role")
	}
	newRole, ok := store.ParseRole(req.Role)
	if !ok {
		return nil, nil, protoerr.Request("invalid role")
	}

	actorRole, err := d.Store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	targetRole, err := d.Store.GetRole(ctx, groupID, targetID)
	if err != nil {
		return nil, nil, protoerr.Request("unknown target")
	}
	if actorRole <= targetRole {
		return nil, nil, protoerr.Request("insufficient role")
	}

	transferred, err := d.Store.SetRole(ctx, groupID, actorID, targetID, newRole)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}

	pushes := []Push{{UserID: targetID, Kind: wire.EventRoleChanged, Data: map[string]any{"group": groupID, "role": newRole.String()}}}
	if transferred {
		pushes = append(pushes, Push{UserID: actorID, Kind: wire.EventRoleChanged, Data: map[string]any{"group": groupID, "role": store.RoleModerator.String()}})
	}
	return map[string]any{}, pushes, nil
}

func (d *Dispatcher) setMuted(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Target string `json:"target"`
		Muted  bool   `json:"muted"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	targetID, err := uuid.Parse(req.Target)
	if err != nil {
		return nil, nil, protoerr.Request("invalid target id")
	}
	if targetID == actorID {
		return nil, nil, protoerr.Request("cannot change your own muted status")
	}
	actorRole, err := d.Store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	targetRole, err := d.Store.GetRole(ctx, groupID, targetID)
	if err != nil {
		return nil, nil, protoerr.Request("unknown target")
	}
	if actorRole <= targetRole {
		return nil, nil, protoerr.Request("insufficient role")
	}
	if err := d.Store.SetMuted(ctx, groupID, targetID, req.Muted); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, []Push{{UserID: targetID, Kind: wire.EventMutedChanged, Data: map[string]any{"group": groupID, "muted": req.Muted}}}, nil
}
