package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
)

func (d *Dispatcher) createGroup(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	if req.Name == "" {
		return nil, nil, protoerr.Request("name is required")
	}
	name, err := d.Store.GetUserName(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	g, err := d.Store.CreateGroup(ctx, actorID, name, req.Name)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"id": g.ID}, nil, nil
}

func (d *Dispatcher) createSubGroup(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string      `json:"group"`
		Name  string      `json:"name"`
		Users []uuid.UUID `json:"users"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	if req.Name == "" {
		return nil, nil, protoerr.Request("name is required")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleOwner); err != nil {
		return nil, nil, err
	}

	ownerName, err := d.Store.GetUserName(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	memberNames := make(map[uuid.UUID]string, len(req.Users))
	for _, uid := range req.Users {
		n, err := d.Store.GetUserName(ctx, uid)
		if err == nil {
			memberNames[uid] = n
		}
	}

	sub, err := d.Store.CreateSubGroup(ctx, groupID, actorID, ownerName, req.Name, req.Users, memberNames)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"id": sub.ID}, nil, nil
}

func (d *Dispatcher) getGroups(ctx context.Context, actorID uuid.UUID) (any, []Push, error) {
	groups, err := d.Store.GetGroups(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return groups, nil, nil
}

func (d *Dispatcher) getGroupInfo(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Groups      []uuid.UUID `json:"groups"`
		LastRefresh int64       `json:"lastRefresh"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groups, err := d.Store.GetGroupInfo(ctx, actorID, req.Groups, req.LastRefresh)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return groups, nil, nil
}

func (d *Dispatcher) createModule(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string `json:"group"`
		Name  string `json:"name"`
		Type  string `json:"type"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	if req.Name == "" {
		return nil, nil, protoerr.Request("name is required")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}
	moduleType := store.ModuleType(req.Type)
	switch moduleType {
	case store.ModuleChat, store.ModuleTask, store.ModuleCal, store.ModulePoll, store.ModuleCustom:
	default:
		moduleType = store.ModuleCustom
	}
	m, err := d.Store.CreateModule(ctx, groupID, req.Name, moduleType)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"id": m.ID}, nil, nil
}

func (d *Dispatcher) setRequireApproval(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group   string `json:"group"`
		Require bool   `json:"require"`
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
	if err := d.Store.SetRequireApproval(ctx, groupID, req.Require); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, nil, nil
}

func (d *Dispatcher) setModuleEnabled(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group   string `json:"group"`
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}
	if err := d.Store.SetModuleEnabled(ctx, groupID, moduleID, req.Enabled); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, nil, nil
}

func (d *Dispatcher) getUsers(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
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
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	users, err := d.Store.GetUsers(ctx, groupID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return users, nil, nil
}

func (d *Dispatcher) getUserInfo(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string `json:"group"`
		User  string `json:"user"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	userID, err := uuid.Parse(req.User)
	if err != nil {
		return nil, nil, protoerr.Request("invalid user id")
	}
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	member, err := d.Store.GetUserInfo(ctx, groupID, userID)
	if err != nil {
		return nil, nil, protoerr.Request("unknown user")
	}
	return member, nil, nil
}

func (d *Dispatcher) getModules(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
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
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	modules, err := d.Store.GetModules(ctx, groupID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return modules, nil, nil
}

func (d *Dispatcher) getModuleInfo(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group string `json:"group"`
		ID    string `json:"id"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return nil, nil, protoerr.Request("not a member of this group")
	}
	m, err := d.Store.GetModuleInfo(ctx, moduleID)
	if err != nil {
		return nil, nil, protoerr.Request("unknown module")
	}
	return m, nil, nil
}
