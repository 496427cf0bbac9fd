package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
)

func (d *Dispatcher) getTwoFactor(ctx context.Context, actorID uuid.UUID) (any, []Push, error) {
	enabled, err := d.Store.GetTwoFactor(ctx, actorID)
	if err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{"enabled": enabled}, nil, nil
}

func (d *Dispatcher) setTwoFactor(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	if req.Enabled == nil {
		return nil, nil, protoerr.Request("enabled is required")
	}
	if err := d.Store.SetTwoFactor(ctx, actorID, *req.Enabled); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	return map[string]any{}, nil, nil
}
