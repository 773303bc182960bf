package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"timed-exercise-service/internal/app"
	"timed-exercise-service/internal/domain"
	"timed-exercise-service/internal/view"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the exercise pages and the activity endpoints on top of the engine.
type Handler struct {
	engine   *app.Engine
	sessions *CookieSessions
	pages    *view.Renderer
	validate *Validator
	ws       *WSHandler
	checks   map[string]HealthCheck
	log      zerolog.Logger
}

func NewHandler(engine *app.Engine, sessions *CookieSessions, pages *view.Renderer, log zerolog.Logger, checks map[string]HealthCheck) *Handler {
	log = log.With().Str("component", "http").Logger()
	return &Handler{
		engine:   engine,
		sessions: sessions,
		pages:    pages,
		validate: NewValidator(),
		ws:       NewWSHandler(engine, sessions, log),
		checks:   checks,
		log:      log,
	}
}

// Routes builds the HTTP surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("POST /start-exercise", h.start)
	mux.HandleFunc("GET /exercise/{slug}/{token}", h.exercise)
	mux.HandleFunc("POST /submit-exercise/{slug}/{token}", h.submit)
	mux.HandleFunc("POST /activity-monitor/{token}", h.activity)
	mux.HandleFunc("GET /ws/activity/{token}", h.ws.ServeWS)
	mux.HandleFunc("GET /healthz", h.healthz)
	return requestLogger(h.log, mux)
}

type startRequest struct {
	UserName     string `json:"userName" validate:"required,max=100"`
	ExerciseSlug string `json:"exerciseSlug" validate:"required,max=200"`
}

type startResponse struct {
	Token    string    `json:"token"`
	Slug     string    `json:"slug"`
	URL      string    `json:"url"`
	Deadline time.Time `json:"deadline"`
}

type submitRequest struct {
	Answers []string `json:"answers"`
}

type activityRequest struct {
	Type string `json:"type" validate:"required,oneof=blur focus"`
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.engine.ListExercises(r.Context())
	if err != nil {
		h.failErr(w, r, err, ErrInvalidPayload, ErrCatalogUnavailable)
		return
	}
	if wantsJSON(r) {
		for i := range exercises {
			exercises[i].Answers = nil
		}
		writeJSON(w, http.StatusOK, exercises)
		return
	}
	h.render(w, http.StatusOK, view.PageIndex, view.IndexData{Exercises: exercises})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req, func(form url.Values) {
		req.UserName = form.Get("userName")
		req.ExerciseSlug = form.Get("exerciseSlug")
	}); err != nil {
		h.fail(w, r, http.StatusBadRequest, ErrInvalidPayload, nil)
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	req.ExerciseSlug = strings.TrimSpace(req.ExerciseSlug)
	if err := h.validate.Struct(req); err != nil {
		h.failErr(w, r, err, ErrMissingStartInput, ErrExerciseUnavailable)
		return
	}

	sessionID, err := h.sessions.Issue(w, r)
	if err != nil {
		h.failErr(w, r, err, ErrMissingStartInput, ErrExerciseUnavailable)
		return
	}
	sess, err := h.engine.Start(r.Context(), sessionID, req.UserName, req.ExerciseSlug)
	if err != nil {
		h.failErr(w, r, err, ErrMissingStartInput, ErrExerciseUnavailable)
		return
	}

	target := exercisePath(sess.ExerciseSlug, sess.SessionToken)
	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, startResponse{
			Token:    sess.SessionToken,
			Slug:     sess.ExerciseSlug,
			URL:      target,
			Deadline: sess.StartTime.Add(h.engine.Duration()),
		})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) exercise(w http.ResponseWriter, r *http.Request) {
	slug, token := r.PathValue("slug"), r.PathValue("token")
	sessionID, ok := h.sessions.Lookup(r)
	if !ok {
		h.invalidSession(w, r)
		return
	}
	attempt, err := h.engine.View(r.Context(), sessionID, slug, token)
	if errors.Is(err, domain.ErrInvalidSession) {
		h.invalidSession(w, r)
		return
	}
	if err != nil {
		h.failErr(w, r, err, ErrInvalidPayload, ErrExerciseUnavailable)
		return
	}
	h.respondAttempt(w, r, http.StatusOK, attempt)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	slug, token := r.PathValue("slug"), r.PathValue("token")
	sessionID, ok := h.sessions.Lookup(r)
	if !ok {
		h.fail(w, r, http.StatusForbidden, ErrInvalidSession, nil)
		return
	}

	var req submitRequest
	if err := decode(r, &req, func(form url.Values) {
		req.Answers = formAnswers(form)
	}); err != nil {
		h.fail(w, r, http.StatusBadRequest, ErrInvalidPayload, nil)
		return
	}

	attempt, err := h.engine.Submit(r.Context(), sessionID, slug, token, req.Answers)
	if errors.Is(err, domain.ErrAttemptClosed) {
		h.alreadyCompleted(w, r, sessionID, slug, token)
		return
	}
	if err != nil {
		h.failErr(w, r, err, ErrInvalidPayload, ErrCompletionUnavailable)
		return
	}
	h.respondAttempt(w, r, http.StatusOK, attempt)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var req activityRequest
	if err := decode(r, &req, func(form url.Values) {
		req.Type = form.Get("type")
	}); err != nil {
		h.fail(w, r, http.StatusBadRequest, ErrInvalidPayload, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.failErr(w, r, err, ErrInvalidPayload, ErrCompletionUnavailable)
		return
	}

	sessionID, ok := h.sessions.Lookup(r)
	if ok {
		if err := h.engine.ReportActivity(r.Context(), sessionID, token, domain.ActivityKind(req.Type)); err != nil {
			h.failErr(w, r, err, ErrInvalidPayload, ErrCompletionUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	if !wantsJSON(r) && len(report) == 0 {
		_, _ = w.Write([]byte("ok"))
		return
	}
	writeJSON(w, status, report)
}

// alreadyCompleted answers a submit that lost to another completion trigger.
func (h *Handler) alreadyCompleted(w http.ResponseWriter, r *http.Request, sessionID, slug, token string) {
	if !wantsJSON(r) {
		http.Redirect(w, r, exercisePath(slug, token), http.StatusSeeOther)
		return
	}
	attempt, err := h.engine.View(r.Context(), sessionID, slug, token)
	if err == nil && attempt.ShowResults {
		writeJSON(w, http.StatusOK, attempt)
		return
	}
	h.fail(w, r, http.StatusConflict, ErrAttemptClosed, nil)
}

func (h *Handler) invalidSession(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		h.fail(w, r, http.StatusForbidden, ErrInvalidSession, nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) respondAttempt(w http.ResponseWriter, r *http.Request, status int, attempt domain.AttemptView) {
	if wantsJSON(r) {
		writeJSON(w, status, attempt)
		return
	}
	slug := attempt.Exercise.Slug
	h.render(w, status, view.PageExercise, view.ExerciseData{
		View:        attempt,
		SubmitURL:   "/submit-exercise/" + url.PathEscape(slug) + "/" + url.PathEscape(attempt.SessionToken),
		ActivityURL: "/activity-monitor/" + url.PathEscape(attempt.SessionToken),
		SocketURL:   "/ws/activity/" + url.PathEscape(attempt.SessionToken),
	})
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages.Render(w, page, data); err != nil {
		h.log.Error().Err(err).Str("page", page).Msg("render failed")
	}
}

func exercisePath(slug, token string) string {
	return fmt.Sprintf("/exercise/%s/%s", url.PathEscape(slug), url.PathEscape(token))
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// decode reads a JSON body into dst, or hands parsed form values to fromForm.
func decode(r *http.Request, dst any, fromForm func(url.Values)) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return json.NewDecoder(r.Body).Decode(dst)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	fromForm(r.PostForm)
	return nil
}

// formAnswers accepts both repeated answers fields and indexed answers[i] fields.
func formAnswers(form url.Values) []string {
	if answers, ok := form["answers"]; ok {
		return answers
	}
	var answers []string
	for i := 0; ; i++ {
		v, ok := form[fmt.Sprintf("answers[%d]", i)]
		if !ok {
			return answers
		}
		answers = append(answers, v[0])
	}
}
