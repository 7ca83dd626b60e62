// Package access is the HTTP client for the calculation endpoints. It fetches
// templates and stores results on a remote engine, and turns every failed call
// into one of the engine's typed errors.
package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
)

const (
	apiPrefix      = "/api/calculations"
	defaultTimeout = 30 * time.Second
	// error bodies above this size are truncated in AccessError messages
	maxErrorBody = 4 << 10
)

// Client talks to a calculation server. It keeps cookies between calls so
// session credentials travel with every request.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default client. Its cookie jar, if any, is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger logs every request at debug level
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// New creates a client for the server at baseURL, e.g. "https://obra.example.com"
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Templates lists the active templates matching filter
func (c *Client) Templates(ctx context.Context, filter calculations.TemplateFilter) ([]*calculations.Template, error) {
	q := url.Values{}
	for _, t := range filter.Types {
		q.Add("types", string(t))
	}
	for _, p := range filter.TargetProfessions {
		q.Add("targetProfessions", p)
	}
	if filter.SearchTerm != "" {
		q.Set("searchTerm", filter.SearchTerm)
	}

	var data struct {
		Templates []*calculations.Template `json:"templates"`
	}
	if err := c.do(ctx, "templates", http.MethodGet, "/templates", q, nil, &data); err != nil {
		return nil, err
	}
	return data.Templates, nil
}

// Template fetches one template by ID
func (c *Client) Template(ctx context.Context, id string) (*calculations.Template, error) {
	var t calculations.Template
	if err := c.do(ctx, "template", http.MethodGet, "/templates/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Execute runs a calculation remotely and returns the unsaved result
func (c *Client) Execute(ctx context.Context, req calcservice.ExecuteRequest) (*calculations.Result, error) {
	var r calculations.Result
	if err := c.do(ctx, "execute", http.MethodPost, "/execute", nil, req, &r); err != nil {
		var verr *calculations.ValidationError
		if errors.As(err, &verr) {
			verr.TemplateID = req.TemplateID
		}
		return nil, err
	}
	return &r, nil
}

// SaveResult stores a named copy of an executed result
func (c *Client) SaveResult(ctx context.Context, req calculations.SaveRequest) (*calculations.Result, error) {
	var r calculations.Result
	if err := c.do(ctx, "save-result", http.MethodPost, "/save-result", nil, req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Saved lists saved results, optionally restricted to a project
func (c *Client) Saved(ctx context.Context, projectID string) ([]*calculations.Result, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("projectId", projectID)
	}

	var results []*calculations.Result
	if err := c.do(ctx, "saved", http.MethodGet, "/saved", q, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Recommendations asks the server which templates to suggest next
func (c *Client) Recommendations(ctx context.Context, req calcservice.RecommendationRequest) ([]*calculations.Template, error) {
	q := url.Values{}
	if req.TemplateID != "" {
		q.Set("templateId", req.TemplateID)
	}
	if req.ProjectID != "" {
		q.Set("projectId", req.ProjectID)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var templates []*calculations.Template
	if err := c.do(ctx, "recommendations", http.MethodGet, "/recommendations", q, nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Compare builds the comparison table of 2 to 4 stored results
func (c *Client) Compare(ctx context.Context, ids []string) (*calculations.ComparisonTable, error) {
	body := struct {
		ResultIDs []string `json:"resultIds"`
	}{ResultIDs: ids}

	var table calculations.ComparisonTable
	if err := c.do(ctx, "compare", http.MethodPost, "/compare", nil, body, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Error   string                   `json:"error"`
	Details string                   `json:"details"`
	Fields  calculations.FieldErrors `json:"fields"`
}

// do sends one JSON request and decodes the data of the response envelope into out
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return calculations.NewAccessError(op, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return calculations.NewAccessError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return calculations.NewAccessError(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("access request",
		zap.String("op", "access."+op),
		zap.String("method", method),
		zap.String("url", u.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &calculations.AccessError{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Cause: err}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &calculations.AccessError{Op: op, StatusCode: resp.StatusCode, Message: "invalid response data", Cause: err}
	}
	return nil
}

// decodeError turns a non-2xx response into a typed error. Field-scoped
// validation failures come back as ValidationError, everything else as
// AccessError wrapping the matching not-found sentinel when there is one.
func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &calculations.AccessError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if resp.StatusCode == http.StatusUnprocessableEntity && len(body.Fields) > 0 {
		return &calculations.ValidationError{Fields: body.Fields}
	}

	aerr := &calculations.AccessError{Op: op, StatusCode: resp.StatusCode, Message: body.Error}
	if body.Details != "" {
		aerr.Message += ": " + body.Details
	}
	if resp.StatusCode == http.StatusNotFound {
		switch body.Error {
		case "template not found":
			aerr.Cause = calculations.ErrTemplateNotFound
		case "result not found":
			aerr.Cause = calculations.ErrResultNotFound
		}
	}
	return aerr
}
