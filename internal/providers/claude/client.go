package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrMissingCookie indicates that the client was configured without a session credential.
var ErrMissingCookie = errors.New("claude: session cookie is required")

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

// RemoteError reports a failed exchange with the chat service.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("claude: %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("claude: %s: status %d", e.Op, e.Status)
}

// Options configures the chat service client.
type Options struct {
	SessionCookie string
	BaseURL       string
	UserAgent     string
	Timezone      string
	HTTPClient    *http.Client
	Logger        *zerolog.Logger
	// RequestTimeout bounds the non-streaming calls (conversation CRUD,
	// uploads, organization resolution). Zero means 60 seconds. The
	// streaming completion exchange is bounded only by SendOptions.Timeout.
	RequestTimeout time.Duration
}

// Client is an authenticated facade over the remote chat API. The
// organization scope is resolved once at construction and cached for the
// lifetime of the client.
type Client struct {
	cookie     string
	baseURL    string
	userAgent  string
	timezone   string
	orgID      string
	httpClient *http.Client
	reqTimeout time.Duration
	logger     zerolog.Logger
}

// Conversation is the remote session record grouping prompt/completion exchanges.
type Conversation struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	FileName         string `json:"file_name"`
	FileType         string `json:"file_type"`
	FileSize         int64  `json:"file_size"`
	ExtractedContent string `json:"extracted_content,omitempty"`
}

// NewClient constructs a client and resolves the organization scope with a
// single remote call.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cookie := strings.TrimSpace(opts.SessionCookie)
	if cookie == "" {
		return nil, ErrMissingCookie
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://claude.ai/api"
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timezone := opts.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No http.Client.Timeout here: it would also cap reading the
		// completion stream, which routinely outlives any sane fixed bound.
		// Every call is bounded by a per-call context instead.
		httpClient = &http.Client{}
	}
	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 60 * time.Second
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}

	c := &Client{
		cookie:     cookie,
		baseURL:    baseURL,
		userAgent:  userAgent,
		timezone:   timezone,
		httpClient: httpClient,
		reqTimeout: reqTimeout,
		logger:     logger,
	}
	orgID, err := c.resolveOrganization(ctx)
	if err != nil {
		return nil, err
	}
	c.orgID = orgID
	return c, nil
}

// OrganizationID returns the cached organization scope.
func (c *Client) OrganizationID() string {
	return c.orgID
}

// callCtx bounds a non-streaming exchange with the configured request timeout.
func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.reqTimeout)
}

func (c *Client) resolveOrganization(ctx context.Context) (string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/organizations", nil)
	if err != nil {
		return "", fmt.Errorf("claude: build organizations request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude: fetch organizations: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("claude: read organizations: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &RemoteError{Op: "organizations", Status: resp.StatusCode, Body: snippet(raw)}
	}
	var orgs []struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &orgs); err != nil {
		return "", fmt.Errorf("claude: decode organizations: %w", err)
	}
	if len(orgs) == 0 || orgs[0].UUID == "" {
		return "", errors.New("claude: no organization available for credential")
	}
	return orgs[0].UUID, nil
}

// CreateConversation registers a fresh conversation with a client-generated
// identifier and returns the server's record.
func (c *Client) CreateConversation(ctx context.Context) (*Conversation, error) {
	payload, err := json.Marshal(map[string]string{
		"uuid": uuid.NewString(),
		"name": "",
	})
	if err != nil {
		return nil, fmt.Errorf("claude: encode conversation: %w", err)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	endpoint := fmt.Sprintf("%s/organizations/%s/chat_conversations", c.baseURL, c.orgID)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("claude: build conversation request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude: create conversation: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read conversation: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "create conversation", Status: resp.StatusCode, Body: snippet(raw)}
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("claude: decode conversation: %w", err)
	}
	c.logger.Debug().Str("conversation_id", conv.UUID).Msg("claude: created conversation")
	return &conv, nil
}

// SendOptions tunes a single SendMessage call.
type SendOptions struct {
	// AttachmentPath, when non-empty, is uploaded before the prompt is posted.
	AttachmentPath string
	// Timeout bounds the whole streamed exchange. Zero means 500 seconds.
	Timeout time.Duration
	// Sink receives completion chunks as they arrive. May be nil.
	Sink io.Writer
}

// SendMessage posts the prompt to the conversation's completion endpoint and
// returns the fully assembled streamed reply.
func (c *Client) SendMessage(ctx context.Context, prompt, conversationID string, opts SendOptions) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attachments := []Attachment{}
	if opts.AttachmentPath != "" {
		att, err := c.UploadAttachment(ctx, opts.AttachmentPath)
		if err != nil {
			return "", err
		}
		attachments = append(attachments, *att)
	}

	payload, err := json.Marshal(map[string]any{
		"prompt":      prompt,
		"timezone":    c.timezone,
		"attachments": attachments,
	})
	if err != nil {
		return "", fmt.Errorf("claude: encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/organizations/%s/chat_conversations/%s/completion", c.baseURL, c.orgID, conversationID)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("claude: build message request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude: send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", &RemoteError{Op: "send message", Status: resp.StatusCode, Body: snippet(raw)}
	}

	text, err := DecodeEventStream(resp.Body, opts.Sink)
	if err != nil {
		return "", fmt.Errorf("claude: decode stream: %w", err)
	}
	c.logger.Debug().
		Str("conversation_id", conversationID).
		Int("reply_len", len(text)).
		Msg("claude: received completion")
	return text, nil
}

// ListConversations returns every conversation under the organization.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	endpoint := fmt.Sprintf("%s/organizations/%s/chat_conversations", c.baseURL, c.orgID)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("claude: build list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude: list conversations: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read conversations: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "list conversations", Status: resp.StatusCode, Body: snippet(raw)}
	}
	var conversations []Conversation
	if err := json.Unmarshal(raw, &conversations); err != nil {
		return nil, fmt.Errorf("claude: decode conversations: %w", err)
	}
	return conversations, nil
}

// DeleteConversation removes a conversation. The remote answers 204 on
// success; every other status is reported as false, not as an error.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) bool {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	endpoint := fmt.Sprintf("%s/organizations/%s/chat_conversations/%s", c.baseURL, c.orgID, conversationID)
	payload, err := json.Marshal(conversationID)
	if err != nil {
		return false
	}
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusNoContent
}

// RenameConversation retitles a conversation, reporting success as a boolean.
func (c *Client) RenameConversation(ctx context.Context, title, conversationID string) bool {
	payload, err := json.Marshal(map[string]string{
		"organization_uuid": c.orgID,
		"conversation_uuid": conversationID,
		"title":             title,
	})
	if err != nil {
		return false
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/rename_chat", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// History returns the raw conversation record including its message log.
func (c *Client) History(ctx context.Context, conversationID string) (json.RawMessage, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	endpoint := fmt.Sprintf("%s/organizations/%s/chat_conversations/%s", c.baseURL, c.orgID, conversationID)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("claude: build history request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude: fetch history: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read history: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "history", Status: resp.StatusCode, Body: snippet(raw)}
	}
	return json.RawMessage(raw), nil
}

// UploadAttachment posts a local file as multipart form data and returns the
// attachment reference the completion endpoint expects.
func (c *Client) UploadAttachment(ctx context.Context, path string) (*Attachment, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("claude: open attachment: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("claude: stat attachment: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	// CreateFormFile would stamp the part application/octet-stream; the
	// remote keys extraction off the declared type, so build the part header
	// with the inferred one.
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(path))))
	header.Set("Content-Type", contentTypeFor(path))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("claude: build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("claude: copy attachment: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("claude: finalize multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/organizations/%s/upload", c.baseURL, c.orgID)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("claude: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude: upload attachment: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "upload attachment", Status: resp.StatusCode, Body: snippet(raw)}
	}
	att := Attachment{
		FileName: filepath.Base(path),
		FileType: contentTypeFor(path),
		FileSize: info.Size(),
	}
	if err := json.Unmarshal(raw, &att); err != nil {
		// Server response shape varies; the local metadata is enough.
		c.logger.Debug().Err(err).Msg("claude: upload response not decodable, using local metadata")
	}
	return &att, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Referer", "https://claude.ai/chats")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", c.cookie)
	return req, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// contentTypeFor infers an attachment MIME type from the file extension,
// falling back to a generic binary type.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
