package http

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"timed-exercise-service/internal/app"
	"timed-exercise-service/internal/catalog"
	"timed-exercise-service/internal/domain"
	"timed-exercise-service/internal/infra/memory"
	"timed-exercise-service/internal/view"
)

type harness struct {
	server      *httptest.Server
	client      *http.Client
	submissions *memory.SubmissionStore
	scheduler   *manualScheduler
}

type manualScheduler struct {
	mu    sync.Mutex
	fires []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires = append(s.fires, f)
	return manualTimer{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	exercises := memory.NewExerciseRepository(memory.NewStaticExerciseLoader(catalog.Defaults()), time.Minute)
	submissions := memory.NewSubmissionStore()
	scheduler := &manualScheduler{}
	engine := app.NewEngine(app.Deps{
		Exercises:   exercises,
		Submissions: submissions,
		Sessions:    memory.NewSessionStore(DefaultSessionTTL),
		Registry:    memory.NewAttemptRegistry(),
		Claims:      memory.NewClaimStore(time.Hour),
		Scheduler:   scheduler,
		Logger:      zerolog.Nop(),
	})
	pages, err := view.New()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	handler := NewHandler(engine, NewCookieSessions("test-secret", DefaultSessionTTL, false), pages, zerolog.Nop(), nil)

	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{server: server, client: client, submissions: submissions, scheduler: scheduler}
}

func (h *harness) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, h.server.URL+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) start(t *testing.T, slug string) startResponse {
	t.Helper()
	resp := h.postJSON(t, "/start-exercise", `{"userName":"Болд","exerciseSlug":"`+slug+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		Data startResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	return out.Data
}

func decodeAttempt(t *testing.T, resp *http.Response) domain.AttemptView {
	t.Helper()
	var out struct {
		Data domain.AttemptView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	return out.Data
}

func TestStartFormRedirectsToAttemptPage(t *testing.T) {
	h := newHarness(t)

	form := url.Values{"userName": {"Болд"}, "exerciseSlug": {"math-multiplication-exercise"}}
	resp, err := h.client.PostForm(h.server.URL+"/start-exercise", form)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/exercise/math-multiplication-exercise/math-multiplication-exercise_") {
		t.Fatalf("unexpected location %q", location)
	}

	page, err := h.client.Get(h.server.URL + location)
	if err != nil {
		t.Fatalf("get attempt page: %v", err)
	}
	defer page.Body.Close()
	if page.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", page.StatusCode)
	}
}

func TestStartRejectsMissingInput(t *testing.T) {
	h := newHarness(t)
	resp := h.postJSON(t, "/start-exercise", `{"userName":"   ","exerciseSlug":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var out struct {
		Error ErrorBody `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Error.Message != "Хэрэглэгчийн нэр эсвэл дасгалын хаяг дутуу байна." {
		t.Fatalf("unexpected message %q", out.Error.Message)
	}
	if _, ok := out.Error.Fields["userName"]; !ok {
		t.Fatalf("expected userName field error, got %v", out.Error.Fields)
	}
}

func TestStartUnknownExercise(t *testing.T) {
	h := newHarness(t)
	resp := h.postJSON(t, "/start-exercise", `{"userName":"Болд","exerciseSlug":"nope"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmitScoresAnswers(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "math-multiplication-exercise")

	resp := h.postJSON(t, "/submit-exercise/math-multiplication-exercise/"+started.Token, `{"answers":["35","37"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	attempt := decodeAttempt(t, resp)
	if !attempt.ShowResults || attempt.Score != 1 || attempt.TotalQuestions != 2 || attempt.TimedOut {
		t.Fatalf("unexpected result %+v", attempt)
	}
	if len(attempt.CorrectAnswers) != 2 {
		t.Fatalf("expected correct answers with results")
	}

	// Reloading the page shows the stored result.
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+started.URL, nil)
	req.Header.Set("Accept", "application/json")
	again, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer again.Body.Close()
	if got := decodeAttempt(t, again); got.Score != 1 || !got.ShowResults {
		t.Fatalf("expected stored result, got %+v", got)
	}
}

func TestInProgressViewHidesAnswers(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "math-multiplication-exercise")

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+started.URL, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	attempt := decodeAttempt(t, resp)
	if attempt.ShowResults || len(attempt.Exercise.Answers) != 0 || len(attempt.CorrectAnswers) != 0 {
		t.Fatalf("answers leaked before completion: %+v", attempt)
	}
	if attempt.RemainingSeconds <= 0 {
		t.Fatalf("expected remaining time, got %d", attempt.RemainingSeconds)
	}
}

func TestBlurThenSubmitKeepsForcedResult(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "math-multiplication-exercise")

	blur := h.postJSON(t, "/activity-monitor/"+started.Token, `{"type":"blur"}`)
	if blur.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for blur, got %d", blur.StatusCode)
	}
	// A second blur is a no-op.
	if again := h.postJSON(t, "/activity-monitor/"+started.Token, `{"type":"blur"}`); again.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for repeated blur, got %d", again.StatusCode)
	}

	resp := h.postJSON(t, "/submit-exercise/math-multiplication-exercise/"+started.Token, `{"answers":["35","36"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected stored result, got %d", resp.StatusCode)
	}
	attempt := decodeAttempt(t, resp)
	if attempt.Score != 0 || !attempt.LeftPage || !attempt.TimedOut {
		t.Fatalf("expected forced zero result, got %+v", attempt)
	}
	if len(attempt.UserAnswers) != 2 || attempt.UserAnswers[0] != "" || attempt.UserAnswers[1] != "" {
		t.Fatalf("expected blank answers, got %q", attempt.UserAnswers)
	}
	if h.submissions.Writes() != 1 {
		t.Fatalf("expected exactly one write, got %d", h.submissions.Writes())
	}
}

func TestSubmitWithoutSessionIsForbidden(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "math-multiplication-exercise")

	req, _ := http.NewRequest(http.MethodPost, h.server.URL+"/submit-exercise/math-multiplication-exercise/"+started.Token, strings.NewReader(`{"answers":["35"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSubmitWrongSlugIsForbidden(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "math-multiplication-exercise")

	resp := h.postJSON(t, "/submit-exercise/physics-force-exercise/"+started.Token, `{"answers":["35"]}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAttemptPageWithoutSessionRedirectsHome(t *testing.T) {
	h := newHarness(t)
	client := &http.Client{CheckRedirect: h.client.CheckRedirect}
	resp, err := client.Get(h.server.URL + "/exercise/math-multiplication-exercise/tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestActivityRejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	resp := h.postJSON(t, "/activity-monitor/tok", `{"type":"scroll"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeadlineCompletesAttempt(t *testing.T) {
	h := newHarness(t)
	started := h.start(t, "english-verb-exercise")

	h.scheduler.mu.Lock()
	fires := append([]func(){}, h.scheduler.fires...)
	h.scheduler.mu.Unlock()
	if len(fires) != 1 {
		t.Fatalf("expected one armed deadline, got %d", len(fires))
	}
	fires[0]()
	fires[0]()

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+started.URL, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	attempt := decodeAttempt(t, resp)
	if !attempt.ShowResults || !attempt.TimedOut || attempt.LeftPage || attempt.Score != 0 {
		t.Fatalf("expected timed out result, got %+v", attempt)
	}
	if h.submissions.Writes() != 1 {
		t.Fatalf("expected one write, got %d", h.submissions.Writes())
	}
}

func TestIndexListsCatalogWithoutAnswers(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Data []domain.Exercise `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) != 5 {
		t.Fatalf("expected 5 exercises, got %d", len(out.Data))
	}
	for _, ex := range out.Data {
		if len(ex.Answers) != 0 {
			t.Fatalf("answers leaked for %s", ex.Slug)
		}
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Get(h.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
