package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/tourneysync/tourney/internal/tournament"
)

// Ensure Client implements Gateway at compile time.
var _ Gateway = (*Client)(nil)

const (
	defaultUserAgent    = "tourney/0.3"
	defaultTimeout      = 10 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxErrorBody        = 4 << 10
)

// ClientConfig configures the HTTP gateway.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/api/.
	BaseURL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Retries is how many extra attempts idempotent requests get after a
	// transport error or a 5xx response. Creates are never retried.
	Retries int

	// RetryBackoff is the constant wait between attempts.
	RetryBackoff time.Duration

	UserAgent string

	// Doer overrides the underlying transport (tests).
	Doer heimdall.Doer
}

// Client talks to the tournament HTTP API.
type Client struct {
	baseURL   *url.URL
	retrying  *httpclient.Client
	single    *httpclient.Client
	userAgent string
}

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	retryOpts := []httpclient.Option{
		httpclient.WithHTTPTimeout(cfg.Timeout),
		httpclient.WithRetryCount(cfg.Retries),
		httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(cfg.RetryBackoff, cfg.RetryBackoff/4))),
	}
	singleOpts := []httpclient.Option{
		httpclient.WithHTTPTimeout(cfg.Timeout),
	}
	if cfg.Doer != nil {
		retryOpts = append(retryOpts, httpclient.WithHTTPClient(cfg.Doer))
		singleOpts = append(singleOpts, httpclient.WithHTTPClient(cfg.Doer))
	}

	return &Client{
		baseURL:   base,
		retrying:  httpclient.NewClient(retryOpts...),
		single:    httpclient.NewClient(singleOpts...),
		userAgent: cfg.UserAgent,
	}, nil
}

// BaseURL returns the parsed API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Login exchanges email and password for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (Credential, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, c.baseURL.JoinPath("auth", "login"), "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return Credential{}, err
	}
	if resp.Token == "" {
		return Credential{}, &AuthError{Err: fmt.Errorf("login response carried no token")}
	}
	return Credential{Token: resp.Token, UserID: resp.User.ID, Email: resp.User.Email}, nil
}

// ListTournaments fetches one page of tournaments.
func (c *Client) ListTournaments(ctx context.Context, token string, page, limit int) ([]tournament.Tournament, Pagination, error) {
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))
	u := c.baseURL.JoinPath("tournaments")
	u.RawQuery = values.Encode()

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, u, token, nil, &resp); err != nil {
		return nil, Pagination{}, err
	}

	items := make([]tournament.Tournament, 0, len(resp.Tournaments))
	for _, d := range resp.Tournaments {
		if d.ID == "" {
			return nil, Pagination{}, fmt.Errorf("decode response: tournament %q has no id", d.Name)
		}
		items = append(items, d.toDomain())
	}
	return items, resp.Pagination, nil
}

// GetTournament fetches a single tournament by remote id.
func (c *Client) GetTournament(ctx context.Context, token, id string) (tournament.Tournament, error) {
	var resp tournamentDTO
	if err := c.do(ctx, http.MethodGet, c.baseURL.JoinPath("tournaments", id), token, nil, &resp); err != nil {
		return tournament.Tournament{}, err
	}
	return decoded(resp, id), nil
}

// CreateTournament creates t and returns the server's copy with its new id.
func (c *Client) CreateTournament(ctx context.Context, token string, t tournament.Tournament) (tournament.Tournament, error) {
	body := toDTO(t)
	body.ID = ""

	var resp tournamentDTO
	if err := c.do(ctx, http.MethodPost, c.baseURL.JoinPath("tournaments"), token, body, &resp); err != nil {
		return tournament.Tournament{}, err
	}
	if resp.ID == "" {
		return tournament.Tournament{}, fmt.Errorf("decode response: created tournament has no id")
	}
	return resp.toDomain(), nil
}

// UpdateTournament replaces the tournament stored under id.
func (c *Client) UpdateTournament(ctx context.Context, token, id string, t tournament.Tournament) (tournament.Tournament, error) {
	body := toDTO(t)
	body.ID = id

	var resp tournamentDTO
	if err := c.do(ctx, http.MethodPut, c.baseURL.JoinPath("tournaments", id), token, body, &resp); err != nil {
		return tournament.Tournament{}, err
	}
	return decoded(resp, id), nil
}

// DeleteTournament removes the tournament stored under id.
func (c *Client) DeleteTournament(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL.JoinPath("tournaments", id), token, nil, nil)
}

// decoded maps a single-item response, filling in the id when the server
// omitted it.
func decoded(d tournamentDTO, id string) tournament.Tournament {
	if d.ID == "" {
		d.ID = id
	}
	return d.toDomain()
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, token string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	hc := c.retrying
	if method == http.MethodPost {
		hc = c.single
	}

	resp, err := hc.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("execute request %s %s: %w", method, u.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// heimdall hands back the last 5xx response without an error once the
	// retries are spent, so the status is always checked here.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Method:     method,
			Path:       u.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{Err: apiErr}
		}
		return apiErr
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api base url %q has no host", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
