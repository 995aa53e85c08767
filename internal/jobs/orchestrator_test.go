package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"vizgen/internal/providers/claude"
)

type fakeClient struct {
	reply       string
	convErr     error
	sendErr     error
	panicInSend bool
	gotPrompt   string
}

func (f *fakeClient) CreateConversation(ctx context.Context) (*claude.Conversation, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	return &claude.Conversation{UUID: "conv-1"}, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, prompt, conversationID string, opts claude.SendOptions) (string, error) {
	if f.panicInSend {
		panic("connection state corrupted")
	}
	f.gotPrompt = prompt
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.reply, nil
}

type fakePool struct {
	client *fakeClient
}

func (p *fakePool) Acquire() Client { return p.client }

type fakeRenderer struct {
	err     error
	gotText string
	gotName string
	calls   int
}

func (r *fakeRenderer) Render(ctx context.Context, text, name string) (string, error) {
	r.calls++
	r.gotText = text
	r.gotName = name
	if r.err != nil {
		return "", r.err
	}
	return "rendered", nil
}

func newTestOrchestrator(t *testing.T, client *fakeClient, renderer *fakeRenderer) (*Orchestrator, *Store) {
	t.Helper()
	store := NewStore()
	o, err := NewOrchestrator(Options{
		Pool:     &fakePool{client: client},
		Store:    store,
		Renderer: renderer,
		BuildPrompt: func(req Request, name string) string {
			return "generate " + req.Query + " as " + name
		},
		SendTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o, store
}

func TestSubmitReturnsPendingImmediately(t *testing.T) {
	client := &fakeClient{reply: "```python\npass\n```"}
	o, store := newTestOrchestrator(t, client, &fakeRenderer{})

	id := o.Submit(Request{Query: "plot sin(x)"})
	j, ok := store.Get(id)
	if !ok {
		t.Fatalf("job not found immediately after submit")
	}
	if j.Status != StatusPending && j.Status != StatusCompleted {
		t.Fatalf("status = %s", j.Status)
	}
	o.Wait()
}

func TestRoundTripCompletesWithSanitizedArtifact(t *testing.T) {
	client := &fakeClient{reply: "```python\nprint(1)\n```"}
	renderer := &fakeRenderer{}
	o, store := newTestOrchestrator(t, client, renderer)

	id := o.Submit(Request{Query: "circle", Name: "My Cool Viz!!"})
	o.Wait()

	j, ok := store.Get(id)
	if !ok {
		t.Fatalf("job missing after completion")
	}
	if j.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %q", j.Status, j.Error)
	}
	if j.Result == nil || j.Result.Filename != "My_Cool_Viz.mp4" {
		t.Fatalf("result = %+v", j.Result)
	}
	if renderer.gotName != "My Cool Viz!!" {
		t.Fatalf("renderer saw name %q", renderer.gotName)
	}
	if !strings.Contains(client.gotPrompt, "circle") {
		t.Fatalf("prompt = %q", client.gotPrompt)
	}
}

func TestConversationFailureFailsJob(t *testing.T) {
	client := &fakeClient{convErr: &claude.RemoteError{Op: "create conversation", Status: 503}}
	renderer := &fakeRenderer{}
	o, store := newTestOrchestrator(t, client, renderer)

	id := o.Submit(Request{Query: "q"})
	o.Wait()

	j, _ := store.Get(id)
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Error == "" {
		t.Fatalf("failed job must carry a non-empty error")
	}
	if renderer.calls != 0 {
		t.Fatalf("renderer must not run when generation fails")
	}
}

func TestSendFailureFailsJob(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("claude: send message: timeout")}
	o, store := newTestOrchestrator(t, client, &fakeRenderer{})

	id := o.Submit(Request{Query: "q"})
	o.Wait()

	j, _ := store.Get(id)
	if j.Status != StatusFailed || !strings.Contains(j.Error, "timeout") {
		t.Fatalf("job = %+v", j)
	}
}

func TestRenderFailureFailsJob(t *testing.T) {
	client := &fakeClient{reply: "no code in here"}
	renderer := &fakeRenderer{err: errors.New("render: no python code block found")}
	o, store := newTestOrchestrator(t, client, renderer)

	id := o.Submit(Request{Query: "q"})
	o.Wait()

	j, _ := store.Get(id)
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if !strings.Contains(j.Error, "no python code block") {
		t.Fatalf("error = %q", j.Error)
	}
}

func TestPanicInPipelineFailsJob(t *testing.T) {
	client := &fakeClient{panicInSend: true}
	o, store := newTestOrchestrator(t, client, &fakeRenderer{})

	id := o.Submit(Request{Query: "q"})
	o.Wait()

	j, _ := store.Get(id)
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want failed after panic", j.Status)
	}
	if !strings.Contains(j.Error, "connection state corrupted") {
		t.Fatalf("error = %q", j.Error)
	}
}

func TestTerminalStatusStable(t *testing.T) {
	client := &fakeClient{reply: "```python\npass\n```"}
	o, store := newTestOrchestrator(t, client, &fakeRenderer{})

	id := o.Submit(Request{Query: "q", Name: "viz"})
	o.Wait()

	first, _ := store.Get(id)
	for i := 0; i < 5; i++ {
		again, _ := store.Get(id)
		if again.Status != first.Status {
			t.Fatalf("status changed from %s to %s", first.Status, again.Status)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	if err := (Request{}).Validate(); err == nil {
		t.Fatalf("empty query must be rejected")
	}
	if err := (Request{Query: "q", Name: strings.Repeat("n", 51)}).Validate(); err == nil {
		t.Fatalf("overlong name must be rejected")
	}
	if err := (Request{Query: "q", Name: strings.Repeat("n", 50)}).Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestRequestDisplayName(t *testing.T) {
	if got := (Request{Query: "plot", Name: "Named"}).DisplayName(); got != "Named" {
		t.Fatalf("display name = %q", got)
	}
	long := strings.Repeat("q", 80)
	if got := (Request{Query: long}).DisplayName(); len(got) != 50 {
		t.Fatalf("display name length = %d, want 50", len(got))
	}
}

func TestRequestDisplayNameMultibyteQuery(t *testing.T) {
	got := (Request{Query: strings.Repeat("Ü", 80)}).DisplayName()
	if !utf8.ValidString(got) {
		t.Fatalf("display name is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 50 {
		t.Fatalf("display name rune count = %d, want 50", n)
	}
}
