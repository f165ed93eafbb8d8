// Package server provides the admin HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aero123421/RSS7/internal/delivery"
	"github.com/Aero123421/RSS7/internal/feeds"
	"github.com/Aero123421/RSS7/internal/model"
	"github.com/Aero123421/RSS7/internal/rss"
)

// FeedAdmin is the feed administration surface.
type FeedAdmin interface {
	Add(ctx context.Context, req feeds.AddRequest) (*model.Feed, error)
	Remove(ctx context.Context, url string, notify bool) (*model.Feed, error)
	AssignChannel(ctx context.Context, url, channelID string) error
	List(ctx context.Context) ([]feeds.Listing, error)
	RemoveByChannel(ctx context.Context, channelID string) (int, error)
	CheckNow(ctx context.Context, url string) (*delivery.Result, error)
	CheckChannel(ctx context.Context, channelID string) (*delivery.Result, error)
	ImportOPML(ctx context.Context, r io.Reader) (feeds.ImportResult, error)
	ExportOPML(ctx context.Context) ([]byte, error)
}

// Store is the part of the store the API reads and writes directly.
type Store interface {
	DatabaseType() string
	GetSnapshot(ctx context.Context, messageID string) (*model.Snapshot, bool)
	SaveSnapshot(ctx context.Context, messageID, channelID string, article model.Article, limit int) bool
	PurgeOlderThan(ctx context.Context, age time.Duration) int64
	GetPollingInterval(ctx context.Context, def int) (int, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Answerer answers questions about delivered messages.
type Answerer interface {
	Answer(ctx context.Context, messageID, question string) (string, error)
}

// Sweeper runs one poll sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (rss.SweepResult, bool)
}

// Outbox hands pending messages to an external front-end.
type Outbox interface {
	Next() (delivery.Entry, bool)
	Len() int
}

// QueueStats reports delivery backlog.
type QueueStats interface {
	Len() int
	Pending() int
}

// Config holds the dependencies of the server. Outbox and Queue may be nil.
type Config struct {
	Store           Store
	Feeds           FeedAdmin
	QA              Answerer
	Sweeper         Sweeper
	Outbox          Outbox
	Queue           QueueStats
	DefaultInterval int
	Retention       time.Duration
	SnapshotCap     int
	Logger          *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg    Config
	router chi.Router
	log    *slog.Logger
}

// New creates a new server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultInterval < rss.MinPollingIntervalMinutes {
		cfg.DefaultInterval = rss.DefaultIntervalMinutes
	}
	s := &Server{cfg: cfg, log: cfg.Logger.With("component", "server")}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Delete("/feeds", s.handleRemoveFeed)
		r.Post("/feeds/assign-channel", s.handleAssignChannel)
		r.Post("/feeds/check-now", s.handleCheckNow)

		r.Post("/qa", s.handleQA)
		r.Delete("/channels/{channelID}", s.handleChannelDelete)

		r.Get("/articles/{messageID}", s.handleGetArticle)
		r.Post("/articles", s.handleSaveArticle)
		r.Get("/outbox/next", s.handleOutboxNext)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
		r.Post("/sweep", s.handleSweep)
		r.Post("/cleanup", s.handleCleanup)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// requestLogger logs each request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":   "ok",
		"database": s.cfg.Store.DatabaseType(),
	}
	if s.cfg.Queue != nil {
		resp["queued"] = s.cfg.Queue.Len()
		resp["pending"] = s.cfg.Queue.Pending()
	}
	if s.cfg.Outbox != nil {
		resp["outbox"] = s.cfg.Outbox.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Feeds ---

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Feeds.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req feeds.AddRequest
	if !decode(w, r, &req) {
		return
	}
	feed, err := s.cfg.Feeds.Add(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": fmt.Sprintf("フィード「%s」を追加しました", feed.Title),
		"feed":    feed,
	})
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		Notify *bool  `json:"notify"`
	}
	if !decode(w, r, &req) {
		return
	}
	notify := req.Notify == nil || *req.Notify
	feed, err := s.cfg.Feeds.Remove(r.Context(), req.URL, notify)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("フィード「%s」を削除しました", feed.Title),
	})
}

func (s *Server) handleAssignChannel(w http.ResponseWriter, r *http.Request) {
	req := struct {
		URL       string `json:"url"`
		ChannelID string `json:"channel_id"`
	}{
		URL:       r.URL.Query().Get("url"),
		ChannelID: r.URL.Query().Get("channel_id"),
	}
	if req.URL == "" && !decode(w, r, &req) {
		return
	}
	if req.URL == "" || req.ChannelID == "" {
		writeMessage(w, http.StatusBadRequest, "url and channel_id are required")
		return
	}
	if err := s.cfg.Feeds.AssignChannel(r.Context(), req.URL, req.ChannelID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Feed %s assigned to channel %s", req.URL, req.ChannelID),
	})
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string `json:"url"`
		ChannelID string `json:"channel_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	var (
		res *delivery.Result
		err error
	)
	switch {
	case req.URL != "":
		res, err = s.cfg.Feeds.CheckNow(r.Context(), req.URL)
	case req.ChannelID != "":
		res, err = s.cfg.Feeds.CheckChannel(r.Context(), req.ChannelID)
	default:
		writeMessage(w, http.StatusBadRequest, "url or channel_id is required")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "記事を処理しました。",
		"message_id": res.MessageID,
		"article":    res.Article,
	})
}

func (s *Server) handleChannelDelete(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	n, err := s.cfg.Feeds.RemoveByChannel(r.Context(), channelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg := "関連するフィードはありません。"
	if n > 0 {
		msg = fmt.Sprintf("チャンネル削除に伴い %d 件のフィードを削除しました。", n)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": msg, "removed": n})
}

// --- Q&A and articles ---

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID         string `json:"message_id"`
		OriginalMessageID string `json:"original_message_id"`
		Question          string `json:"question"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := req.MessageID
	if id == "" {
		id = req.OriginalMessageID
	}
	if id == "" || strings.TrimSpace(req.Question) == "" {
		writeMessage(w, http.StatusBadRequest, "message_id and question are required")
		return
	}
	answer, err := s.cfg.QA.Answer(r.Context(), id, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.cfg.Store.GetSnapshot(r.Context(), chi.URLParam(r, "messageID"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "元の記事が見つかりませんでした。")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSaveArticle associates a platform message with an article. The
// article is either copied from an outbox entry's snapshot or given inline.
func (s *Server) handleSaveArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		ChannelID string `json:"channel_id"`
		OutboxID  string `json:"outbox_id"`
		Title     string `json:"title"`
		Content   string `json:"content"`
		FeedURL   string `json:"feed_url"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		writeMessage(w, http.StatusBadRequest, "message_id is required")
		return
	}

	article := model.Article{Title: req.Title, Content: req.Content, FeedURL: req.FeedURL}
	channelID := req.ChannelID
	if req.OutboxID != "" {
		snap, ok := s.cfg.Store.GetSnapshot(r.Context(), req.OutboxID)
		if !ok {
			writeMessage(w, http.StatusNotFound, "outbox entry not found")
			return
		}
		article = model.Article{Title: snap.Title, Content: snap.Content, FeedURL: snap.FeedURL}
		if channelID == "" {
			channelID = snap.ChannelID
		}
	}
	if !s.cfg.Store.SaveSnapshot(r.Context(), req.MessageID, channelID, article, s.cfg.SnapshotCap) {
		writeMessage(w, http.StatusInternalServerError, "failed to store article")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "message_id": req.MessageID})
}

func (s *Server) handleOutboxNext(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Outbox == nil {
		writeMessage(w, http.StatusNotFound, "outbox is disabled")
		return
	}
	entry, ok := s.cfg.Outbox.Next()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- Settings and maintenance ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	interval, err := s.cfg.Store.GetPollingInterval(r.Context(), s.cfg.DefaultInterval)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"polling_interval": interval})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PollingInterval int `json:"polling_interval"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.PollingInterval < rss.MinPollingIntervalMinutes {
		req.PollingInterval = rss.MinPollingIntervalMinutes
	}
	if err := s.cfg.Store.SetSetting(r.Context(), model.SettingPollingInterval, strconv.Itoa(req.PollingInterval)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "polling_interval": req.PollingInterval})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	res, ok := s.cfg.Sweeper.Sweep(ctx)
	if !ok {
		writeMessage(w, http.StatusConflict, "a sweep is already running")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Retention <= 0 {
		writeMessage(w, http.StatusBadRequest, "retention is disabled")
		return
	}
	deleted := s.cfg.Store.PurgeOlderThan(r.Context(), s.cfg.Retention)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "deleted": deleted})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("opml")
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "No file provided")
			return
		}
		defer file.Close()
		body = file
	}
	res, err := s.cfg.Feeds.ImportOPML(r.Context(), body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse OPML: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": res.Imported,
		"total":    res.Total,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := s.cfg.Feeds.ExportOPML(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=rss7-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeMessage(w, status, errorMessage(err))
}
