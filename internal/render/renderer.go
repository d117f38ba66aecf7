// Package render turns state mutations into HTML regions.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"

	"github.com/bryan-buckman/rssagg/internal/i18n"
	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/state"
	"github.com/samber/lo"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Region names a DOM container that is re-rendered as a unit.
type Region string

const (
	RegionForm  Region = "form"
	RegionFeeds Region = "feeds"
	RegionPosts Region = "posts"
	RegionModal Region = "modal"
)

// Regions lists every region in page order.
var Regions = []Region{RegionForm, RegionFeeds, RegionPosts, RegionModal}

// FormView is the presentational state of the subscription form. The form
// and loading-status handlers each own part of it.
type FormView struct {
	InputInvalid   bool
	Readonly       bool
	SubmitDisabled bool
	ClearInput     bool
	Feedback       string
	FeedbackClass  string
}

type postView struct {
	ID    string
	Title string
	Link  string
	Seen  bool
}

type modalView struct {
	Title       string
	Description string
	Link        string
}

// Renderer keeps the latest markup of each region.
type Renderer struct {
	tmpl *template.Template
	tr   *i18n.Translator

	mu      sync.RWMutex
	regions map[Region]template.HTML
	form    FormView
	publish func(Region, template.HTML)
}

// New parses the region templates.
func New(tr *i18n.Translator) (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"t": tr.T,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse region templates: %w", err)
	}
	return &Renderer{
		tmpl:    tmpl,
		tr:      tr,
		regions: make(map[Region]template.HTML),
	}, nil
}

// OnRender sets a hook called with every freshly rendered region.
func (r *Renderer) OnRender(fn func(Region, template.HTML)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish = fn
}

// Register subscribes the path handlers to st and returns a function that
// removes them.
func (r *Renderer) Register(st *state.Store) func() {
	unsubs := lo.MapToSlice(r.handlers(), func(p state.Path, h state.Handler) func() {
		return st.Subscribe(p, h)
	})
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// handlers is the exact-path table. Paths not listed here render nothing.
func (r *Renderer) handlers() map[state.Path]state.Handler {
	return map[state.Path]state.Handler{
		state.PathForm:          r.handleForm,
		state.PathLoadingStatus: r.handleLoadingStatus,
		state.PathFeeds:         r.handleFeeds,
		state.PathPosts:         r.handlePosts,
		state.PathSeenPosts:     r.handlePosts,
		state.PathModalPostID:   r.handleModal,
	}
}

// RenderAll renders every region from s. Used once at startup.
func (r *Renderer) RenderAll(s model.State) {
	r.renderForm()
	r.handleFeeds(s)
	r.handlePosts(s)
	r.handleModal(s)
}

// Region returns the latest markup of a region.
func (r *Renderer) Region(name Region) template.HTML {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regions[name]
}

// Snapshot returns the latest markup of all regions.
func (r *Renderer) Snapshot() map[Region]template.HTML {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Region]template.HTML, len(r.regions))
	for k, v := range r.regions {
		out[k] = v
	}
	return out
}

// Translator returns the translator used for markup.
func (r *Renderer) Translator() *i18n.Translator { return r.tr }

func (r *Renderer) handleForm(s model.State) {
	r.mu.Lock()
	if s.Form.Valid {
		r.form.InputInvalid = false
	} else {
		r.form.InputInvalid = true
		r.form.FeedbackClass = "text-danger"
		r.form.Feedback = r.tr.Error(s.Form.Error)
	}
	r.form.ClearInput = false
	r.mu.Unlock()
	r.renderForm()
}

func (r *Renderer) handleLoadingStatus(s model.State) {
	r.mu.Lock()
	switch s.LoadingProcess.Status {
	case model.LoadingIdle:
		r.form.SubmitDisabled = false
		r.form.Readonly = false
		r.form.ClearInput = true
		r.form.FeedbackClass = "text-success"
		r.form.Feedback = r.tr.T("loading.success")
	case model.LoadingFailed:
		r.form.SubmitDisabled = false
		r.form.Readonly = false
		r.form.ClearInput = false
		r.form.FeedbackClass = "text-danger"
		r.form.Feedback = r.tr.Error(s.LoadingProcess.Error)
	case model.LoadingLoading:
		r.form.SubmitDisabled = true
		r.form.Readonly = true
		r.form.ClearInput = false
		r.form.FeedbackClass = ""
		r.form.Feedback = ""
	default:
		r.mu.Unlock()
		logger.Errorf("[render] unknown loading status %q", s.LoadingProcess.Status)
		return
	}
	r.mu.Unlock()
	r.renderForm()
}

func (r *Renderer) handleFeeds(s model.State) {
	r.render(RegionFeeds, "region-feeds", s.Feeds)
}

func (r *Renderer) handlePosts(s model.State) {
	posts := lo.Map(s.Posts, func(p model.Post, _ int) postView {
		return postView{ID: p.ID, Title: p.Title, Link: p.Link, Seen: s.IsSeen(p.ID)}
	})
	r.render(RegionPosts, "region-posts", posts)
}

func (r *Renderer) handleModal(s model.State) {
	if s.Modal.PostID == "" {
		r.render(RegionModal, "region-modal", (*modalView)(nil))
		return
	}
	post, ok := s.FindPost(s.Modal.PostID)
	if !ok {
		logger.Warnf("[render] modal post %s not found", s.Modal.PostID)
		r.render(RegionModal, "region-modal", (*modalView)(nil))
		return
	}
	r.render(RegionModal, "region-modal", &modalView{
		Title:       post.Title,
		Description: post.Description,
		Link:        post.Link,
	})
}

func (r *Renderer) renderForm() {
	r.mu.RLock()
	view := r.form
	r.mu.RUnlock()
	r.render(RegionForm, "region-form", view)
}

func (r *Renderer) render(region Region, name string, data interface{}) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Errorf("[render] %s: %v", region, err)
		return
	}
	html := template.HTML(buf.String())

	r.mu.Lock()
	r.regions[region] = html
	publish := r.publish
	r.mu.Unlock()

	if publish != nil {
		publish(region, html)
	}
}
