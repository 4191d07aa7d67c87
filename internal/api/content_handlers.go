package api

import (
	"errors"
	"net/http"

	"github.com/postmaster/postmaster-backend/internal/generator"
	"github.com/postmaster/postmaster-backend/internal/storage"
)

// GeneratePost drafts a post from a topic.
func (h *Handler) GeneratePost(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentUser(w, r); !ok {
		return
	}
	var req generator.Request
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := h.Generator.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

// UploadImage stores one multipart image in field "file".
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	// headroom over the file limit for the multipart envelope
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxFileSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, r, storage.ErrTooLarge)
			return
		}
		h.writeError(w, r, storage.ErrNoFile)
		return
	}
	defer file.Close()

	res, err := h.Uploader.Upload(r.Context(), user.ID, &storage.File{
		Name: header.Filename,
		Type: header.Header.Get("Content-Type"),
		Size: header.Size,
		Body: file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	summary, err := h.Dashboard.Summary(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}
