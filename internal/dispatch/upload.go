package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
)

var errNoUploadDir = errors.New("upload directory not configured")

var uploadNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeUploadName(name string) string {
	base := filepath.Base(name)
	cleaned := uploadNameSanitizer.ReplaceAllString(base, "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		cleaned = "file"
	}
	return cleaned
}

func (d *Dispatcher) uploadFile(ctx context.Context, actorID uuid.UUID, data json.RawMessage) (any, []Push, error) {
	var req struct {
		Name     string `json:"name"`
		Contents string `json:"contents"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, nil, err
	}
	if req.Name == "" {
		return nil, nil, protoerr.Request("name is required")
	}

	raw, err := base64.StdEncoding.DecodeString(req.Contents)
	if err != nil {
		return nil, nil, protoerr.Request("contents is not valid base64")
	}
	if int64(len(raw)) > d.MaxUploadBytes {
		return nil, nil, protoerr.Request("file exceeds the maximum upload size")
	}
	if d.UploadDir == "" {
		return nil, nil, protoerr.Internal(errNoUploadDir)
	}

	safeName := sanitizeUploadName(req.Name)
	link := uuid.New().String() + "-" + safeName
	path := filepath.Join(d.UploadDir, link)

	if err := os.MkdirAll(d.UploadDir, 0o755); err != nil {
		return nil, nil, protoerr.Internal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, nil, protoerr.Internal(err)
	}

	return map[string]any{"link": link}, nil, nil
}
