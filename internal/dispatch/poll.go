package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
)

func (d *Dispatcher) pollContext(ctx context.Context, actorID, groupID, moduleID uuid.UUID) error {
	if _, err := d.Store.CheckUserInGroup(ctx, groupID, actorID); err != nil {
		return protoerr.Request("not a member of this group")
	}
	if err := d.Store.CheckModuleInGroup(ctx, store.ModulePoll, moduleID, groupID); err != nil {
		return protoerr.Request("not a poll module")
	}
	return nil
}

func (d *Dispatcher) addPoll(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group       string   `json:"group"`
		PollList    string   `json:"pollList"`
		Description string   `json:"description"`
		Options     []string `json:"options"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.PollList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if req.Description == "" {
		return nil, nil, protoerr.Request("description is required")
	}
	if err := d.pollContext(ctx, actorID, groupID, moduleID); err != nil {
		return nil, nil, err
	}
	poll, err := d.Store.CreatePoll(ctx, moduleID, d.Sanitizer.Sanitize(req.Description), req.Options)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return poll, nil, nil
}

func (d *Dispatcher) getPolls(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		PollList string `json:"pollList"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.PollList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.pollContext(ctx, actorID, groupID, moduleID); err != nil {
		return nil, nil, err
	}
	polls, err := d.Store.GetPolls(ctx, moduleID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return polls, nil, nil
}

func (d *Dispatcher) voteOnPoll(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		PollList string `json:"pollList"`
		ID       int64  `json:"id"`
		Option   int    `json:"option"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.PollList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if req.Option < 0 {
		return nil, nil, protoerr.Request("option must not be negative")
	}
	if err := d.pollContext(ctx, actorID, groupID, moduleID); err != nil {
		return nil, nil, err
	}
	if _, err := d.Store.Vote(ctx, moduleID, req.ID, actorID, req.Option); err != nil {
		return nil, nil, protoerr.Request("unknown poll or option")
	}
	return map[string]any{}, nil, nil
}
