package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vizgen/internal/jobs"
	"vizgen/internal/providers/claude"
	"vizgen/internal/storage"
)

type stubClient struct {
	reply string
}

func (s *stubClient) CreateConversation(ctx context.Context) (*claude.Conversation, error) {
	return &claude.Conversation{UUID: "conv-1"}, nil
}

func (s *stubClient) SendMessage(ctx context.Context, prompt, conversationID string, opts claude.SendOptions) (string, error) {
	return s.reply, nil
}

type stubPool struct {
	client jobs.Client
}

func (p *stubPool) Acquire() jobs.Client { return p.client }

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, text, name string) (string, error) {
	return "ok", nil
}

type testEnv struct {
	app   *App
	orch  *jobs.Orchestrator
	store *jobs.Store
	lib   *storage.Library
}

func newTestEnv(t *testing.T, jobTTL time.Duration) *testEnv {
	t.Helper()
	store := jobs.NewStore()
	orch, err := jobs.NewOrchestrator(jobs.Options{
		Pool:     &stubPool{client: &stubClient{reply: "```python\npass\n```"}},
		Store:    store,
		Renderer: stubRenderer{},
		BuildPrompt: func(req jobs.Request, name string) string {
			return req.Query
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	lib, err := storage.NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	app := NewApp(store, orch, lib, jobTTL, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	return &testEnv{app: app, orch: orch, store: store, lib: lib}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func writeVideo(t *testing.T, env *testEnv, scene, filename, body string) {
	t.Helper()
	dir := filepath.Join(env.lib.BasePath(), "videos", scene, "1080p60")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGenerateReturnsPendingJob(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate",
		strings.NewReader(`{"query":"plot sin(x)","name":"My Cool Viz!!"}`))
	env.app.Generate(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "pending" || resp.JobID == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if _, ok := env.store.Get(resp.JobID); !ok {
		t.Fatalf("job not registered in store")
	}
	env.orch.Wait()
}

func TestGenerateRejectsBadPayloads(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	cases := []string{
		`{`,
		`{"name":"no query"}`,
		`{"query":"q","name":"` + strings.Repeat("n", 51) + `"}`,
	}
	for _, payload := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(payload))
		env.app.Generate(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestJobStatusRoundTrip(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate",
		strings.NewReader(`{"query":"circle","name":"My Cool Viz!!"}`))
	env.app.Generate(rec, req)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	env.orch.Wait()

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/job/"+submitted.JobID, nil), "job_id", submitted.JobID)
	env.app.JobStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status struct {
		Status string       `json:"status"`
		Result *jobs.Result `json:"result"`
		Error  string       `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "completed" {
		t.Fatalf("status = %q (error %q), want completed", status.Status, status.Error)
	}
	if status.Result == nil || status.Result.Filename != "My_Cool_Viz.mp4" {
		t.Fatalf("result = %+v", status.Result)
	}
}

func TestJobStatusUnknown(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/job/ghost", nil), "job_id", "ghost")
	env.app.JobStatus(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestJobStatusEvictsStaleBeforeRead(t *testing.T) {
	env := newTestEnv(t, time.Nanosecond)

	id := env.orch.Submit(jobs.Request{Query: "q"})
	env.orch.Wait()
	time.Sleep(time.Millisecond)

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/job/"+id, nil), "job_id", id)
	env.app.JobStatus(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stale job should be evicted on read, status = %d", rec.Code)
	}
}

func TestDeleteVideo(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	writeVideo(t, env, "scene-1", "viz.mp4", "x")

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/video/viz.mp4", nil), "filename", "viz.mp4")
	env.app.DeleteVideo(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(env.lib.BasePath(), "videos", "scene-1")); !os.IsNotExist(err) {
		t.Fatalf("scene dir should be removed")
	}
}

func TestDeleteVideoMissing(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/video/ghost.mp4", nil), "filename", "ghost.mp4")
	env.app.DeleteVideo(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteVideoRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/video/x", nil), "filename", "../x.mp4")
	env.app.DeleteVideo(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDownloadVideo(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	writeVideo(t, env, "scene-1", "viz.mp4", "video-bytes")

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/video/viz.mp4", nil), "filename", "viz.mp4")
	env.app.DownloadVideo(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "video-bytes" {
		t.Fatalf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("content type = %q", ct)
	}
}
