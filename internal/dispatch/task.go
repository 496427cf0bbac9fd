package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

func (d *Dispatcher) taskContext(ctx context.Context, actorID, groupID, moduleID uuid.UUID, requireUnmuted bool) error {
	member, err := d.Store.CheckUserInGroup(ctx, groupID, actorID)
	if err != nil {
		return protoerr.Request("not a member of this group")
	}
	if err := d.Store.CheckModuleInGroup(ctx, store.ModuleTask, moduleID, groupID); err != nil {
		return protoerr.Request("not a task module")
	}
	if requireUnmuted && member.Muted {
		return protoerr.Request("user is muted")
	}
	return nil
}

func (d *Dispatcher) addTask(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group       string `json:"group"`
		TaskList    string `json:"taskList"`
		Deadline    int64  `json:"deadline"`
		Description string `json:"description"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.TaskList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if req.Description == "" {
		return nil, nil, protoerr.Request("description is required")
	}
	if req.Deadline < 0 {
		return nil, nil, protoerr.Request("deadline must not be negative")
	}
	if err := d.taskContext(ctx, actorID, groupID, moduleID, true); err != nil {
		return nil, nil, err
	}

	task, err := d.Store.CreateTask(ctx, moduleID, d.Sanitizer.Sanitize(req.Description), req.Deadline)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	push := Push{GroupID: groupID, Kind: wire.EventTask, Data: map[string]any{"group": groupID, "taskList": moduleID, "task": task}}
	return task, []Push{push}, nil
}

func (d *Dispatcher) getTasks(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		TaskList string `json:"taskList"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.TaskList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.taskContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}
	tasks, err := d.Store.GetTasks(ctx, moduleID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return tasks, nil, nil
}

func (d *Dispatcher) updateTaskStatus(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		TaskList string `json:"taskList"`
		ID       int64  `json:"id"`
		Done     bool   `json:"done"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.TaskList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.taskContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}
	task, err := d.Store.UpdateTaskStatus(ctx, moduleID, req.ID, req.Done)
	if err != nil {
		return nil, nil, protoerr.Request("unknown task")
	}
	push := Push{GroupID: groupID, Kind: wire.EventTaskUpdated, Data: map[string]any{"group": groupID, "taskList": moduleID, "task": task}}
	return task, []Push{push}, nil
}

func (d *Dispatcher) updateTaskDeadline(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		TaskList string `json:"taskList"`
		ID       int64  `json:"id"`
		Deadline int64  `json:"deadline"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.TaskList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.taskContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}
	task, err := d.Store.UpdateTaskDeadline(ctx, moduleID, req.ID, req.Deadline)
	if err != nil {
		return nil, nil, protoerr.Request("unknown task")
	}
	push := Push{GroupID: groupID, Kind: wire.EventTaskUpdated, Data: map[string]any{"group": groupID, "taskList": moduleID, "task": task}}
	return task, []Push{push}, nil
}

func (d *Dispatcher) deleteTask(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Group    string `json:"group"`
		TaskList string `json:"taskList"`
		ID       int64  `json:"id"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	groupID, err := uuid.Parse(req.Group)
	if err != nil {
		return nil, nil, protoerr.Request("invalid group id")
	}
	moduleID, err := uuid.Parse(req.TaskList)
	if err != nil {
		return nil, nil, protoerr.Request("invalid module id")
	}
	if err := d.taskContext(ctx, actorID, groupID, moduleID, false); err != nil {
		return nil, nil, err
	}
	if err := d.Store.DeleteTask(ctx, moduleID, req.ID); err != nil {
		return nil, nil, protoerr.Request("unknown task")
	}
	push := Push{GroupID: groupID, Kind: wire.EventTaskDeleted, Data: map[string]any{"group": groupID, "taskList": moduleID, "id": req.ID}}
	return map[string]any{}, []Push{push}, nil
}
