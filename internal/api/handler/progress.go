package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/progress"
	"github.com/hszk-dev/framelens/internal/usecase"
)

type WatchResponse struct {
	VideoID  string `json:"video_id"`
	Watchers int    `json:"watchers"`
}

type SummaryResponse struct {
	Total             int     `json:"total"`
	Done              int     `json:"done"`
	Processing        int     `json:"processing"`
	Pending           int     `json:"pending"`
	DonePercent       float64 `json:"done_percent"`
	ProcessingPercent float64 `json:"processing_percent"`
	PendingPercent    float64 `json:"pending_percent"`
	AllDone           bool    `json:"all_done"`
	InProgress        bool    `json:"in_progress"`
}

type FrameResponse struct {
	Index       int    `json:"index"`
	Status      string `json:"status"`
	URL         string `json:"url,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

type ProgressResponse struct {
	VideoID    string `json:"video_id"`
	FrameCount int    `json:"frame_count"`
	Extracting bool   `json:"extracting"`
	Loading    bool   `json:"loading"`
	Ready      bool   `json:"ready"`
	ShowPlayer bool   `json:"show_player"`
	// ChannelFailed means no further updates will arrive for this watch.
	ChannelFailed bool            `json:"channel_failed"`
	PreviewURL    string          `json:"preview_url,omitempty"`
	VideoURL      string          `json:"video_url,omitempty"`
	Summary       SummaryResponse `json:"summary"`
	Frames        []FrameResponse `json:"frames"`
}

// ProgressHandler exposes per-video ingestion progress. Watches are held by
// the handler on behalf of HTTP clients, one per POST, until a matching DELETE.
type ProgressHandler struct {
	svc    *usecase.ProgressService
	assets repository.AssetResolver
	logger *slog.Logger

	mu   sync.Mutex
	held map[string][]*usecase.Watch
}

// NewProgressHandler creates a new ProgressHandler. assets may be nil, in
// which case asset paths are returned unresolved.
func NewProgressHandler(svc *usecase.ProgressService, assets repository.AssetResolver, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		svc:    svc,
		assets: assets,
		logger: logger.With("component", "progress-handler"),
		held:   make(map[string][]*usecase.Watch),
	}
}

// Watch handles POST /v1/videos/{id}/watch
func (h *ProgressHandler) Watch(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	watch, err := h.svc.Watch(videoID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.mu.Lock()
	h.held[videoID] = append(h.held[videoID], watch)
	n := len(h.held[videoID])
	h.mu.Unlock()

	JSON(w, http.StatusCreated, WatchResponse{VideoID: videoID, Watchers: n})
}

// Unwatch handles DELETE /v1/videos/{id}/watch
// It releases one watch taken by a previous POST.
func (h *ProgressHandler) Unwatch(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	h.mu.Lock()
	watches := h.held[videoID]
	if len(watches) == 0 {
		h.mu.Unlock()
		Error(w, http.StatusNotFound, "not_watching", "Video is not being watched")
		return
	}
	watch := watches[len(watches)-1]
	watches = watches[:len(watches)-1]
	if len(watches) == 0 {
		delete(h.held, videoID)
	} else {
		h.held[videoID] = watches
	}
	n := len(watches)
	h.mu.Unlock()

	watch.Release()
	JSON(w, http.StatusOK, WatchResponse{VideoID: videoID, Watchers: n})
}

// Get handles GET /v1/videos/{id}/progress
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	p, ok := h.svc.Progress(videoID)
	if !ok {
		Error(w, http.StatusNotFound, "progress_not_found", "No progress is tracked for this video")
		return
	}

	JSON(w, http.StatusOK, h.toProgressResponse(r.Context(), videoID, p))
}

// Close releases every watch still held.
func (h *ProgressHandler) Close() {
	h.mu.Lock()
	held := h.held
	h.held = make(map[string][]*usecase.Watch)
	h.mu.Unlock()

	for _, watches := range held {
		for _, watch := range watches {
			watch.Release()
		}
	}
}

func (h *ProgressHandler) toProgressResponse(ctx context.Context, videoID string, p model.Progress) ProgressResponse {
	s := progress.Summarize(p)
	resp := ProgressResponse{
		VideoID:       videoID,
		FrameCount:    p.FrameCount,
		Extracting:    p.Extracting,
		Loading:       p.Loading,
		Ready:         progress.Ready(p),
		ShowPlayer:    p.ShowPlayer,
		ChannelFailed: p.ChannelFailed,
		PreviewURL:    h.resolve(ctx, progress.PreviewFrameURL(p)),
		Summary: SummaryResponse{
			Total:             s.Total,
			Done:              s.Done,
			Processing:        s.Processing,
			Pending:           s.Pending,
			DonePercent:       s.DonePercent,
			ProcessingPercent: s.ProcessingPercent,
			PendingPercent:    s.PendingPercent,
			AllDone:           s.AllDone,
			InProgress:        s.InProgress,
		},
	}
	if p.ShowPlayer {
		resp.VideoURL = h.resolve(ctx, model.VideoPath(videoID))
	}

	thumbs := progress.Thumbnails(p)
	resp.Frames = make([]FrameResponse, 0, len(thumbs))
	for _, th := range thumbs {
		resp.Frames = append(resp.Frames, FrameResponse{
			Index:       th.Index,
			Status:      th.Status.String(),
			URL:         h.resolve(ctx, th.URL),
			Placeholder: th.Placeholder,
		})
	}
	return resp
}

// resolve maps an asset path to a fetchable URL, falling back to the path itself.
func (h *ProgressHandler) resolve(ctx context.Context, assetPath string) string {
	if assetPath == "" || h.assets == nil {
		return assetPath
	}
	u, err := h.assets.ResolveURL(ctx, assetPath)
	if err != nil {
		h.logger.Warn("failed to resolve asset URL",
			slog.String("path", assetPath),
			slog.String("error", err.Error()),
		)
		return assetPath
	}
	return u
}
