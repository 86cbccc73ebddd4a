package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kingsman007137/Bowen/internal/ident"
)

// maxAttachmentSize bounds uploaded images embedded in card content.
const maxAttachmentSize = 10 << 20

var allowedAttachmentExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
}

// AttachmentHandler stores images uploaded from the card editor under a flat
// attachments directory next to the snapshot data.
type AttachmentHandler struct {
	dir string
}

// NewAttachmentHandler creates the handler, ensuring the directory exists.
func NewAttachmentHandler(dataDir string) (*AttachmentHandler, error) {
	dir := filepath.Join(dataDir, "attachments")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attachments: mkdir: %w", err)
	}
	return &AttachmentHandler{dir: dir}, nil
}

// Dir returns the attachments directory (for static serving).
func (h *AttachmentHandler) Dir() string {
	return h.dir
}

// Upload handles POST /attachments. The stored name is a fresh id plus the
// original extension, so card content can reference it by a stable URL.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedAttachmentExts[ext]; !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported file type"))
		return
	}

	name := ident.New() + ext
	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		slog.Error("attachment create failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		_ = os.Remove(dst.Name())
		slog.Error("attachment write failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Filename: name,
		Size:     size,
		URL:      "/attachments/" + name,
	})
}
