package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/progress"
	"github.com/hszk-dev/framelens/internal/usecase"
)

const uploadField = "file"

// Request/Response types

type RenameVideoRequest struct {
	VideoName string `json:"video_name"`
}

type SearchRequest struct {
	Query    string   `json:"query"`
	VideoIDs []string `json:"video_ids,omitempty"`
}

type VideoResponse struct {
	ID              string `json:"video_id"`
	Name            string `json:"video_name"`
	ProcessingState string `json:"processing_state"`
	FrameCount      int    `json:"frame_count"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type ListVideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type SearchHitResponse struct {
	VideoID     string   `json:"video_id"`
	VideoName   string   `json:"video_name,omitempty"`
	FrameIdx    int      `json:"frame_idx"`
	Description string   `json:"description"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
	FrameURL    string   `json:"frame_url,omitempty"`
}

type SearchResponse struct {
	Results []SearchHitResponse `json:"results"`
}

// VideoHandler handles video-related HTTP requests.
type VideoHandler struct {
	svc            usecase.VideoService
	maxUploadBytes int64
}

// NewVideoHandler creates a new VideoHandler. A non-positive maxUploadBytes disables the limit.
func NewVideoHandler(svc usecase.VideoService, maxUploadBytes int64) *VideoHandler {
	return &VideoHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// List handles GET /v1/videos
// With ?refresh=true the list is fetched from the backend first.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	videos := h.svc.List()
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_refresh", "refresh must be a boolean")
			return
		}
		if refresh {
			videos, err = h.svc.Refresh(r.Context())
			if err != nil {
				handleServiceError(w, err)
				return
			}
		}
	}

	resp := ListVideosResponse{Videos: make([]VideoResponse, 0, len(videos))}
	for i := range videos {
		resp.Videos = append(resp.Videos, toVideoResponse(&videos[i]))
	}
	JSON(w, http.StatusOK, resp)
}

// Upload handles POST /v1/videos
// The body is multipart/form-data with the video in the "file" field. The file
// is streamed to the backend without buffering it here.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		Error(w, http.StatusBadRequest, "invalid_request", "Body must be multipart/form-data")
		return
	}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid multipart body")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			Error(w, http.StatusBadRequest, "missing_file", "The file field is required")
			return
		}
		if err != nil {
			uploadError(w, err)
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		video, err := h.svc.Upload(r.Context(), usecase.UploadVideoInput{
			FileName: part.FileName(),
			Content:  part,
		})
		part.Close()
		if err != nil {
			uploadError(w, err)
			return
		}
		JSON(w, http.StatusCreated, toVideoResponse(video))
		return
	}
}

// Rename handles PATCH /v1/videos/{id}
func (h *VideoHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.Rename(r.Context(), chi.URLParam(r, "id"), req.VideoName); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/videos/{id}
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /v1/search
func (h *VideoHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	hits, err := h.svc.Search(r.Context(), usecase.SearchInput{
		Query:    req.Query,
		VideoIDs: req.VideoIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := SearchResponse{Results: make([]SearchHitResponse, 0, len(hits))}
	for _, hit := range hits {
		resp.Results = append(resp.Results, SearchHitResponse{
			VideoID:     hit.VideoID,
			VideoName:   hit.VideoName,
			FrameIdx:    hit.FrameIdx,
			Description: hit.Description,
			Timestamp:   hit.Timestamp,
			FrameURL:    hit.FrameURL,
		})
	}
	JSON(w, http.StatusOK, resp)
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "file_too_large", "Upload exceeds the size limit")
		return
	}
	handleServiceError(w, err)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrVideoNotFound):
		Error(w, http.StatusNotFound, "video_not_found", "Video not found")
	case errors.Is(err, model.ErrEmptyVideoID):
		Error(w, http.StatusBadRequest, "invalid_video_id", "Video ID cannot be empty")
	case errors.Is(err, model.ErrEmptyName):
		Error(w, http.StatusBadRequest, "invalid_video_name", "Video name cannot be empty")
	case errors.Is(err, model.ErrNameTooLong):
		Error(w, http.StatusBadRequest, "invalid_video_name", "Video name exceeds maximum length")
	case errors.Is(err, usecase.ErrEmptyQuery):
		Error(w, http.StatusBadRequest, "invalid_query", "Search query cannot be empty")
	case errors.Is(err, repository.ErrBackendUnavailable):
		Error(w, http.StatusBadGateway, "backend_unavailable", "The video backend is unavailable")
	case errors.Is(err, progress.ErrRegistryClosed):
		Error(w, http.StatusServiceUnavailable, "shutting_down", "The gateway is shutting down")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toVideoResponse(v *model.Video) VideoResponse {
	return VideoResponse{
		ID:              v.ID,
		Name:            v.Name,
		ProcessingState: v.ProcessingState.String(),
		FrameCount:      v.FrameCount,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       v.UpdatedAt.Format(time.RFC3339),
	}
}
