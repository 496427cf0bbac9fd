package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

// chatContext resolves and validates (group, chat module) for a chat-type request, checking membership and mute
// status where required.
func (d *Dispatcher) chatContext(ctx context.Context, actorID, groupID, moduleID uuid.UUID, requireUnmuted bool) error {
	member, err := d.Store.CheckUserInGroup(ctx, groupID, actorID)
	if err != nil {
		return protoerr.Request("not a member of this group")
	}
	if err := d.Store.CheckModuleInGroup(ctx, store.ModuleChat, moduleID, groupID); err != nil {
		return protoerr.Request("not a chat module")
	}
	if requireUnmuted && member.Muted {
		return protoerr.Request("user is muted")
	}
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		Chat     string `json:"chat"`
		Contents string `json:"contents"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Chat)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if req.Contents == "" {
		return nil, nil, protoerr.Request("contents is required")
	}
	if err := d.chatContext(ctx, actorID, groupID, moduleID, true); err != nil {
		return nil, nil, err
	}

	contents := d.Sanitizer.Sanitize(req.Contents)
	msg, err := d.Store.SendMessage(ctx, moduleID, actorID, contents)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}

	reply := map[string]any{
		"id": msg.ID, "sender": msg.Sender, "timestamp": msg.Timestamp, "contents": msg.Contents, "reactions": []any{},
	}
	push := Push{GroupID: groupID, Kind: wire.EventMessage, Data: map[string]any{"group": groupID, "chat": moduleID, "message": reply}}
	return reply, []Push{push}, nil
}

func (d *Dispatcher) getMessages(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group  string `json:"group"`
		Chat   string `json:"chat"`
		After  int64  `json:"after"`
		Before int64  `json:"before"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Chat)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.chatContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}

	after := req.After
	if after < 1 {
		after = 0
	}
	before := req.Before
	if before < 1 {
		before = 1 << 53
	}
	messages, err := d.Store.GetMessages(ctx, moduleID, after, before)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"messages": messages}, nil, nil
}

func (d *Dispatcher) updateMessage(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group       string `json:"group"`
		Chat        string `json:"chat"`
		ID          int64  `json:"id"`
		NewContents string `json:"newContents"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Chat)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.chatContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}

	messages, err := d.Store.GetMessages(ctx, moduleID, req.ID-1, req.ID+1)
	if err != nil || len(messages) == 0 {
		return nil, nil, protoerr.Request("unknown message")
	}
	existing := messages[0]
	if existing.Sender != actorID {
		actorRole, err := d.Store.GetRole(ctx, groupID, actorID)
		if err != nil {
			return nil, nil, protoerr.Internal(err)
		}
		senderRole, err := d.Store.GetRole(ctx, groupID, existing.Sender)
		if err != nil {
			return nil, nil, protoerr.Internal(err)
		}
		if actorRole <= senderRole {
			return nil, nil, protoerr.Request("insufficient role to edit another user's message")
		}
	}

	newContents := req.NewContents
	if newContents != "" {
		newContents = d.Sanitizer.Sanitize(newContents)
	}
	updated, err := d.Store.EditMessage(ctx, moduleID, req.ID, newContents)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	push := Push{GroupID: groupID, Kind: wire.EventMessageUpdate, Data: map[string]any{"group": groupID, "chat": moduleID, "id": req.ID, "contents": updated.Contents, "deleted": updated.Deleted}}
	return updated, []Push{push}, nil
}

func (d *Dispatcher) setReaction(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string  `json:"group"`
		Chat     string  `json:"chat"`
		ID       int64   `json:"id"`
		Reaction *string `json:"reaction"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.Chat)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.chatContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}
	reactions, err := d.Store.SetReaction(ctx, moduleID, req.ID, actorID, req.Reaction)
	if err != nil {
		return nil, nil, protoerr.Request("unknown message")
	}
	push := Push{GroupID: groupID, Kind: wire.EventReaction, Data: map[string]any{"group": groupID, "chat": moduleID, "id": req.ID, "reactions": reactions}}
	return map[string]any{"reactions": reactions}, []Push{push}, nil
}
