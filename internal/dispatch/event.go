package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

func (d *Dispatcher) calContext(ctx context.Context, actorID, groupID, moduleID uuid.UUID) (store.Role, error) {
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return 0, protoerr.Request("not a member of this group")
	}
	if err := d.Store.CheckModuleInGroup(ctx, store.ModuleCal, moduleID, groupID); err != nil {
		return 0, protoerr.Request("not a calendar module")
	}
	return d.Store.GetRole(ctx, groupID, actorID)
}

func (d *Dispatcher) addEvent(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group       string `json:"group"`
		Calendar    string `json:"calendar"`
		Description string `json:"description"`
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if req.Description == "" {
		return nil, nil, protoerr.Request("description is required")
	}
	if req.Start < 1 {
		return nil, nil, protoerr.Request("start must be at least 1")
	}
	if req.End < req.Start {
		return nil, nil, protoerr.Request("end must not precede start")
	}

	role, err := d.calContext(ctx, actorID, groupID, moduleID)
	if err != nil {
		return nil, nil, err
	}
	requireApproval, err := d.groupRequiresApproval(ctx, groupID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	approved := !(role == store.RoleUser && requireApproval)

	event, err := d.Store.CreateEvent(ctx, moduleID, d.Sanitizer.Sanitize(req.Description), req.Start, req.End, approved)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	push := Push{GroupID: groupID, Kind: wire.EventEvent, Data: map[string]any{"group": groupID, "calendar": moduleID, "event": event}}
	return event, []Push{push}, nil
}

func (d *Dispatcher) groupRequiresApproval(ctx context.Context, groupID uuid.UUID) (bool, error) {
	return d.Store.GetGroupRequireApproval(ctx, groupID)
}

func (d *Dispatcher) getEvents(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		Calendar string `json:"calendar"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.calContext(ctx, actorID, groupID, moduleID); err != nil {
		return nil, nil, err
	}
	events, err := d.Store.GetEvents(ctx, moduleID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return events, nil, nil
}

func (d *Dispatcher) approveEvent(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		Calendar string `json:"calendar"`
		ID       int64  `json:"id"`
		Approve  bool   `json:"approve"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}
	if err := d.Store.CheckModuleInGroup(ctx, store.ModuleCal, moduleID, groupID); err != nil {
		return nil, nil, protoerr.Request("not a calendar module")
	}

	event, deleted, err := d.Store.ApproveEvent(ctx, moduleID, req.ID, req.Approve)
	if err != nil {
		return nil, nil, protoerr.Request("unknown event")
	}
	if deleted {
		push := Push{GroupID: groupID, Kind: wire.EventEventDeleted, Data: map[string]any{"group": groupID, "calendar": moduleID, "id": req.ID}}
		return map[string]any{}, []Push{push}, nil
	}
	push := Push{GroupID: groupID, Kind: wire.EventEventApproved, Data: map[string]any{"group": groupID, "calendar": moduleID, "event": event}}
	return event, []Push{push}, nil
}

func (d *Dispatcher) updateEvent(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group       string `json:"group"`
		Calendar    string `json:"calendar"`
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.calContext(ctx, actorID, groupID, moduleID); err != nil {
		return nil, nil, err
	}
	event, err := d.Store.EditEvent(ctx, moduleID, req.ID, d.Sanitizer.Sanitize(req.Description), req.Start, req.End)
	if err != nil {
		return nil, nil, protoerr.Request("unknown event")
	}
	push := Push{GroupID: groupID, Kind: wire.EventEventUpdated, Data: map[string]any{"group": groupID, "calendar": moduleID, "event": event}}
	return event, []Push{push}, nil
}

func (d *Dispatcher) deleteEvent(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		Calendar string `json:"calendar"`
		ID       int64  `json:"id"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}
	if err := d.Store.DeleteEvent(ctx, moduleID, req.ID); err != nil {
		return nil, nil, protoerr.Request("unknown event")
	}
	push := Push{GroupID: groupID, Kind: wire.EventEventDeleted, Data: map[string]any{"group": groupID, "calendar": moduleID, "id": req.ID}}
	return map[string]any{}, []Push{push}, nil
}

func (d *Dispatcher) setBulletin(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		Calendar string `json:"calendar"`
		ID       int64  `json:"id"`
		Bulletin bool   `json:"bulletin"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Calendar)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if _, err := d.requireRole(ctx, groupID, actorID, store.RoleModerator); err != nil {
		return nil, nil, err
	}
	event, err := d.Store.SetBulletinEvent(ctx, moduleID, req.ID, req.Bulletin)
	if err != nil {
		return nil, nil, protoerr.Request("unknown event")
	}
	push := Push{GroupID: groupID, Kind: wire.EventSetBulletin, Data: map[string]any{"group": groupID, "calendar": moduleID, "event": event}}
	return event, []Push{push}, nil
}
