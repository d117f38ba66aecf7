// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/bryan-buckman/rssagg/internal/app"
	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/render"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the main HTTP server.
type Server struct {
	app       *app.App
	hub       *Hub
	gatherer  prometheus.Gatherer
	router    chi.Router
	templates *template.Template
}

// New creates a server for a and starts pushing rendered regions to
// websocket clients. gatherer backs /metrics; nil disables the endpoint.
func New(a *app.App, gatherer prometheus.Gatherer) (*Server, error) {
	tr := a.Renderer().Translator()
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"t": tr.T,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		app:       a,
		hub:       NewHub(),
		gatherer:  gatherer,
		templates: tmpl,
	}
	a.Renderer().OnRender(s.hub.Broadcast)
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.hub.ServeWS)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		// Serve static files.
		staticSub, _ := fs.Sub(staticFS, "static")
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

		// Pages.
		r.Get("/", s.handleHome)
		r.Post("/feeds", s.handleSubmitForm)
		r.Get("/posts/{postID}", s.handlePost)

		// API.
		r.Route("/api", func(r chi.Router) {
			r.Post("/feeds", s.handleSubmitAPI)
			r.Post("/posts/{postID}/open", s.handleOpenPost)
			r.Post("/modal/close", s.handleCloseModal)
			r.Get("/state", s.handleState)
			r.Get("/regions/{name}", s.handleRegion)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/opml/import", s.handleImportOPML)
			r.Get("/opml/export", s.handleExportOPML)
		})
	})

	s.router = r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("[server] shutting down")
	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Page Handlers ---

type pageData struct {
	Lang      string
	Form      template.HTML
	Feeds     template.HTML
	Posts     template.HTML
	Modal     template.HTML
	ModalOpen bool
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.app.CloseModal()
	s.renderPage(w)
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	s.app.Submit(r.Context(), r.PostFormValue("url"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if err := s.app.OpenPost(chi.URLParam(r, "postID")); err != nil {
		http.NotFound(w, r)
		return
	}
	s.renderPage(w)
}

// --- API Handlers ---

func (s *Server) handleSubmitAPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if kind := s.app.SubmitAsync(req.URL); kind != model.ErrorNone {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   string(kind),
			"message": s.app.Renderer().Translator().Error(kind),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(model.LoadingLoading)})
}

func (s *Server) handleOpenPost(w http.ResponseWriter, r *http.Request) {
	if err := s.app.OpenPost(chi.URLParam(r, "postID")); err != nil {
		if errors.Is(err, app.ErrUnknownPost) {
			http.Error(w, "Post not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseModal(w http.ResponseWriter, r *http.Request) {
	s.app.CloseModal()
	w.WriteHeader(http.StatusNoContent)
}

// stateResponse is the JSON view of the state tree.
type stateResponse struct {
	Feeds          []model.Feed         `json:"feeds"`
	Posts          []model.Post         `json:"posts"`
	SeenPosts      []string             `json:"seenPosts"`
	LoadingProcess model.LoadingProcess `json:"loadingProcess"`
	Form           model.FormState      `json:"form"`
	Modal          model.Modal          `json:"modal"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.app.Store().GetState()
	seen := st.SeenIDs()
	sort.Strings(seen)
	writeJSON(w, http.StatusOK, stateResponse{
		Feeds:          st.Feeds,
		Posts:          st.Posts,
		SeenPosts:      seen,
		LoadingProcess: st.LoadingProcess,
		Form:           st.Form,
		Modal:          st.Modal,
	})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	name := render.Region(chi.URLParam(r, "name"))
	if !lo.Contains(render.Regions, name) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(s.app.Renderer().Region(name)))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	res := s.app.Refresh(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"feeds":     res.Feeds,
		"new_posts": res.NewPosts,
		"failures":  res.Failures,
	})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := s.app.ImportOPML(r.Context(), file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse OPML: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"added":   res.Added,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := s.app.ExportOPML()
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=rssagg-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

func (s *Server) renderPage(w http.ResponseWriter) {
	regions := s.app.Renderer().Snapshot()
	data := pageData{
		Lang:      s.app.Renderer().Translator().Language(),
		Form:      regions[render.RegionForm],
		Feeds:     regions[render.RegionFeeds],
		Posts:     regions[render.RegionPosts],
		Modal:     regions[render.RegionModal],
		ModalOpen: regions[render.RegionModal] != "",
	}
	s.render(w, "layout.html", data)
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		logger.Errorf("[server] template %s: %v", name, err)
		http.Error(w, "Render error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[server] encode response: %v", err)
	}
}
