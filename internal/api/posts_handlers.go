package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/posts"
)

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.Posts.List(r.Context(), user.ID, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostsResponse{Posts: list})
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	post, err := h.Posts.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req CreatePostRequest
	if !h.decode(w, r, &req) {
		return
	}

	post, err := h.Posts.Create(r.Context(), user.ID, posts.CreateInput{
		Title:       req.Title,
		Content:     req.Content,
		Images:      req.Images,
		Hashtags:    req.Hashtags,
		Status:      entities.PostStatus(req.Status),
		ScheduledAt: req.ScheduledAt,
		ArticleURL:  req.ArticleURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, PostResponse{Post: post})
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req UpdatePostRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := posts.UpdateInput{
		Title:       req.Title,
		Content:     req.Content,
		Images:      req.Images,
		Hashtags:    req.Hashtags,
		ScheduledAt: req.ScheduledAt,
		ArticleURL:  req.ArticleURL,
	}
	if req.Status != nil {
		status := entities.PostStatus(*req.Status)
		in.Status = &status
	}

	post, err := h.Posts.Update(r.Context(), user.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Posts.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) DuplicatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	post, err := h.Posts.Duplicate(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, PostResponse{Post: post})
}

func (h *Handler) SetPostStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	post, err := h.Posts.SetStatus(r.Context(), user.ID, chi.URLParam(r, "id"), entities.PostStatus(req.Status), req.ScheduledAt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

// PublishPost publishes a post now with the requested or default account.
func (h *Handler) PublishPost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req PublishRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PostID == "" {
		h.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "Post ID is required"))
		return
	}

	res, err := h.Publisher.Publish(r.Context(), user.ID, req.PostID, req.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// SweepPosts publishes the user's due scheduled posts now.
func (h *Handler) SweepPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.Sweeper.Sweep(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
