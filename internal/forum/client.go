package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"deltabot/internal/metrics"
	"deltabot/internal/model"
)

// Client defines what the award engine needs from the forum platform.
type Client interface {
	// FetchParentAndChildren populates t.Parent, t.Root and t.Children.
	FetchParentAndChildren(ctx context.Context, t *model.Thing) error
	PostReply(ctx context.Context, parentID, body string) (*model.Thing, error)
	EditReply(ctx context.Context, replyID, body string) error
	DeleteReply(ctx context.Context, replyID string) error
	ReadDocument(ctx context.Context, path string) (string, error)
	WriteDocument(ctx context.Context, path, content string) error
	MarkMessageRead(ctx context.Context, messageID string) error
}

// Poller lists items that arrived after a cursor time. Intake only;
// the lifecycle engine never calls these.
type Poller interface {
	ListNewComments(ctx context.Context, since time.Time) ([]model.QueuedComment, error)
	ListNewMessages(ctx context.Context, since time.Time) ([]model.QueuedMessage, error)
}

// HTTPClient is a bearer-token client for the forum API.
type HTTPClient struct {
	baseURL     string
	community   string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(baseURL, community, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		community:   community,
		token:       token,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("DELTABOT_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("DELTABOT_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// rawThing is the wire shape of a forum item.
type rawThing struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	Author   string     `json:"author"`
	Created  time.Time  `json:"created_utc"`
	Edited   bool       `json:"edited"`
	ParentID string     `json:"parent_id"`
	Parent   *rawThing  `json:"parent,omitempty"`
	Root     *rawThing  `json:"root,omitempty"`
	Children []rawThing `json:"children,omitempty"`
}

func thingKind(kind string) model.ThingType {
	switch kind {
	case "post":
		return model.TypePost
	case "comment":
		return model.TypeComment
	case "message":
		return model.TypePrivateMessage
	}
	return 0
}

func (r *rawThing) toModel() *model.Thing {
	if r == nil {
		return nil
	}
	t := &model.Thing{
		ID:         r.ID,
		Type:       thingKind(r.Kind),
		Title:      r.Title,
		Body:       r.Body,
		AuthorName: r.Author,
		CreatedUTC: r.Created,
		IsEdited:   r.Edited,
		ParentID:   r.ParentID,
	}
	for i := range r.Children {
		t.Children = append(t.Children, r.Children[i].toModel())
	}
	return t
}

func (c *HTTPClient) FetchParentAndChildren(ctx context.Context, t *model.Thing) error {
	if t.ID == "" {
		return errors.New("empty thing id")
	}
	u := fmt.Sprintf("%s/things/%s?expand=parent,root,children", c.baseURL, url.PathEscape(t.ID))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req, "things")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	var raw rawThing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}
	// Refresh the thing's own fields too; callers may start from a bare id.
	if k := thingKind(raw.Kind); k != 0 {
		t.Type = k
	}
	t.Title = raw.Title
	t.Body = raw.Body
	t.AuthorName = raw.Author
	t.CreatedUTC = raw.Created
	t.IsEdited = raw.Edited
	t.ParentID = raw.ParentID
	t.Parent = raw.Parent.toModel()
	t.Root = raw.Root.toModel()
	t.Children = nil
	for i := range raw.Children {
		child := raw.Children[i].toModel()
		child.Parent = t
		t.Children = append(t.Children, child)
	}
	return nil
}

func (c *HTTPClient) PostReply(ctx context.Context, parentID, body string) (*model.Thing, error) {
	u := fmt.Sprintf("%s/things/%s/replies", c.baseURL, url.PathEscape(parentID))
	resp, err := c.postJSON(ctx, u, map[string]string{"body": body}, "replies")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	var raw rawThing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw.toModel(), nil
}

func (c *HTTPClient) EditReply(ctx context.Context, replyID, body string) error {
	u := fmt.Sprintf("%s/things/%s/edit", c.baseURL, url.PathEscape(replyID))
	return c.postAndDiscard(ctx, u, map[string]string{"body": body}, "edit")
}

func (c *HTTPClient) DeleteReply(ctx context.Context, replyID string) error {
	u := fmt.Sprintf("%s/things/%s/delete", c.baseURL, url.PathEscape(replyID))
	return c.postAndDiscard(ctx, u, nil, "delete")
}

func (c *HTTPClient) ReadDocument(ctx context.Context, path string) (string, error) {
	u := fmt.Sprintf("%s/c/%s/wiki/%s", c.baseURL, url.PathEscape(c.community), path)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.doWithRetry(ctx, req, "wiki")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	var raw struct {
		Content string `json:"content_md"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	return raw.Content, nil
}

func (c *HTTPClient) WriteDocument(ctx context.Context, path, content string) error {
	u := fmt.Sprintf("%s/c/%s/wiki/%s", c.baseURL, url.PathEscape(c.community), path)
	return c.postAndDiscard(ctx, u, map[string]string{"content_md": content}, "wiki")
}

func (c *HTTPClient) MarkMessageRead(ctx context.Context, messageID string) error {
	u := fmt.Sprintf("%s/messages/%s/read", c.baseURL, url.PathEscape(messageID))
	return c.postAndDiscard(ctx, u, nil, "messages")
}

// ListNewComments returns community comments created after since,
// oldest first.
func (c *HTTPClient) ListNewComments(ctx context.Context, since time.Time) ([]model.QueuedComment, error) {
	u := fmt.Sprintf("%s/c/%s/comments/new?since=%s", c.baseURL, url.PathEscape(c.community),
		url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, "comments")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	var raw struct {
		Data []rawThing `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.QueuedComment, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, model.QueuedComment{
			ID:         d.ID,
			ParentID:   d.ParentID,
			Body:       d.Body,
			AuthorName: d.Author,
			CreatedUTC: d.Created,
			IsEdited:   d.Edited,
		})
	}
	return out, nil
}

// ListNewMessages returns unread private messages, oldest first.
func (c *HTTPClient) ListNewMessages(ctx context.Context, since time.Time) ([]model.QueuedMessage, error) {
	u := fmt.Sprintf("%s/messages/unread?since=%s", c.baseURL,
		url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, "messages")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	var raw struct {
		Data []rawThing `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.QueuedMessage, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, model.QueuedMessage{
			ID:         d.ID,
			Subject:    d.Title,
			Body:       d.Body,
			AuthorName: d.Author,
			CreatedUTC: d.Created,
		})
	}
	return out, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, u string, payload any, endpoint string) (*http.Response, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req, endpoint)
}

func (c *HTTPClient) postAndDiscard(ctx context.Context, u string, payload any, endpoint string) error {
	resp, err := c.postJSON(ctx, u, payload, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("forum api status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}
		resp, err := c.httpClient.Do(attemptReq)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				lastErr = fmt.Errorf("forum api status %d", resp.StatusCode)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				metrics.IncAPIRetry(endpoint)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("forum api: giving up after %d attempts: %w", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
