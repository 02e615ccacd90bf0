package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vento-labs/lexops/pkg/plan"
)

// UploadHandler executes UPLOAD_DOCUMENT actions: it copies each
// downloaded notification file into the case folder under its archive
// name. Source paths are keys in the same repository, written by the
// download stage.
type UploadHandler struct {
	store Store
}

// NewUploadHandler creates the handler.
func NewUploadHandler(store Store) *UploadHandler {
	return &UploadHandler{store: store}
}

func (h *UploadHandler) Handle(ctx context.Context, action plan.ActionSpec) (json.RawMessage, error) {
	cfg := action.Config.Upload
	if cfg == nil {
		return nil, fmt.Errorf("action %d has no upload config", action.Order)
	}

	filed := make([]string, 0, len(cfg.Files))
	for _, f := range cfg.Files {
		data, err := h.store.Get(ctx, f.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.SourcePath, err)
		}
		key := Key(cfg.TargetFolder, f.TargetName)
		if err := h.store.Put(ctx, key, data); err != nil {
			return nil, fmt.Errorf("file %s: %w", key, err)
		}
		filed = append(filed, key)
	}
	return json.Marshal(map[string]any{"filed": filed})
}

// DownloadLinkHandler executes DOWNLOAD_LINK actions, producing a
// shareable URL per source document.
type DownloadLinkHandler struct {
	store Store
}

// NewDownloadLinkHandler creates the handler.
func NewDownloadLinkHandler(store Store) *DownloadLinkHandler {
	return &DownloadLinkHandler{store: store}
}

func (h *DownloadLinkHandler) Handle(ctx context.Context, action plan.ActionSpec) (json.RawMessage, error) {
	cfg := action.Config.Link
	if cfg == nil {
		return nil, fmt.Errorf("action %d has no download-link config", action.Order)
	}

	links := make(map[string]string, len(cfg.Paths))
	for _, p := range cfg.Paths {
		url, err := h.store.Link(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", p, err)
		}
		links[p] = url
	}
	return json.Marshal(map[string]any{"links": links})
}
