// Package client is the HTTP and websocket client for the tracking API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// ErrNoSession is returned by calls that need a token when none is set
var ErrNoSession = errors.New("not signed in")

// APIError is a non-2xx response. It unwraps to the matching domain error so
// callers can use errors.Is.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

var codeErrors = map[string]error{
	"code_not_found":            domain.ErrCodeNotFound,
	"self_tracking_rejected":    domain.ErrSelfTracking,
	"target_inactive":           domain.ErrTargetInactive,
	"not_found":                 domain.ErrNotFound,
	"code_generation_exhausted": domain.ErrCodeGenerationExhausted,
	"invalid_credentials":       domain.ErrInvalidCredentials,
	"email_taken":               domain.ErrEmailTaken,
	"invalid_input":             domain.ErrInvalidInput,
	"forbidden":                 domain.ErrForbidden,
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// Session is a signed in identity
type Session struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Identity  *domain.Identity `json:"user"`
}

// ConnectResult is the response of Connect
type ConnectResult struct {
	Relationship *domain.Relationship `json:"relationship"`
	Partner      *domain.Profile      `json:"partner"`
	Created      bool                 `json:"created"`
}

// Client talks to one API server on behalf of one session
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for baseURL, e.g. http://localhost:8080
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// SetToken sets the bearer token used by subsequent calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := c.Token()
		if token == "" {
			return ErrNoSession
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			c.logger.Debug("undecodable error body", slog.Int("status", resp.StatusCode))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// SignUp registers an account and stores the returned token
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	var s Session
	in := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", false, in, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// SignIn authenticates and stores the returned token
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", false, in, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// SignOut revokes the current token and forgets it
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/signout", true, nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// ResetPassword asks the server to issue a reset token for email
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", false, map[string]string{"email": email}, nil)
}

// ConfirmReset sets a new password with a reset token
func (c *Client) ConfirmReset(ctx context.Context, token, password string) error {
	in := map[string]string{"token": token, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password/confirm", false, in, nil)
}

// Profile returns the caller's profile, creating it on first use
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", true, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile changes the display name and/or tracking flag; nil leaves a field unchanged
func (c *Client) UpdateProfile(ctx context.Context, name *string, trackingActive *bool) (*domain.Profile, error) {
	in := map[string]interface{}{}
	if name != nil {
		in["name"] = *name
	}
	if trackingActive != nil {
		in["trackingActive"] = *trackingActive
	}
	var p domain.Profile
	if err := c.do(ctx, http.MethodPatch, "/api/profile", true, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RegenerateCode replaces the caller's tracking code
func (c *Client) RegenerateCode(ctx context.Context) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, http.MethodPost, "/api/profile/code", true, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateCode looks up the owner of a tracking code
func (c *Client) ValidateCode(ctx context.Context, code string) (*domain.CodeInfo, error) {
	var info domain.CodeInfo
	path := "/api/codes/" + url.PathEscape(strings.TrimSpace(code))
	if err := c.do(ctx, http.MethodGet, path, true, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Connect starts tracking the owner of code
func (c *Client) Connect(ctx context.Context, code string) (*ConnectResult, error) {
	var res ConnectResult
	if err := c.do(ctx, http.MethodPost, "/api/relationships", true, map[string]string{"code": code}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Disconnect stops tracking the owner of code
func (c *Client) Disconnect(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/api/relationships/"+url.PathEscape(strings.TrimSpace(code)), true, nil, nil)
}

// Tracked lists the profiles the caller tracks
func (c *Client) Tracked(ctx context.Context) ([]*domain.Profile, error) {
	var out struct {
		Tracked []*domain.Profile `json:"tracked"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/relationships", true, nil, &out); err != nil {
		return nil, err
	}
	return out.Tracked, nil
}

type recordRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordLocation stores one sample for the caller
func (c *Client) RecordLocation(ctx context.Context, sample domain.LocationSample) (*domain.LocationSample, error) {
	in := recordRequest{
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Address:   sample.Address,
		Timestamp: sample.Timestamp,
	}
	var out domain.LocationSample
	if err := c.do(ctx, http.MethodPost, "/api/locations", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PartnerLocation returns the latest partner sample. errors.Is(err,
// domain.ErrNotFound) means there is no partner or no sample yet.
func (c *Client) PartnerLocation(ctx context.Context) (*domain.PartnerLocation, error) {
	var loc domain.PartnerLocation
	if err := c.do(ctx, http.MethodGet, "/api/partner/location", true, nil, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// History returns userID's samples newest first; an empty userID means the caller
func (c *Client) History(ctx context.Context, userID string, limit int) ([]*domain.LocationSample, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user", userID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/locations/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Samples []*domain.LocationSample `json:"samples"`
	}
	if err := c.do(ctx, http.MethodGet, path, true, nil, &out); err != nil {
		return nil, err
	}
	return out.Samples, nil
}
