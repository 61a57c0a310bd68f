package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/renix-codex/feedsync/internal/api"
	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/logger"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.api.Health(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": payload})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.api.Page(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.api.Refresh(r.Context()); err != nil {
		if errors.Is(err, api.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	grew, page := s.api.LoadMore(r.Context(), index)
	writeJSON(w, http.StatusOK, map[string]any{"grew": grew, "page": page})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	p, err := s.api.Post(id)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetLike(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	liked, err := s.api.Liked(r.Context(), id)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "liked": liked})
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	liked, err := s.api.ToggleLike(r.Context(), id)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "liked": liked})
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	img, err := s.api.Avatar(r.Context(), id)
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			writeFeedError(w, err)
			return
		}
		logger.WarnCtx(r.Context(), "avatar unavailable", logger.PostID(id), logger.Err(err))
		writeError(w, http.StatusBadGateway, "avatar unavailable")
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func postID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return 0, false
	}
	return id, true
}

func writeFeedError(w http.ResponseWriter, err error) {
	switch feed.KindOf(err) {
	case feed.KindNotFound:
		writeError(w, http.StatusNotFound, "post not found")
	case feed.KindRemoteFetch:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
