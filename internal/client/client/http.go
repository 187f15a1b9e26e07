package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
)

const defaultTimeout = 15 * time.Second

// HTTPClient talks to the REST backend. It attaches the bearer access
// token to every call and, when the server answers token_expired, refreshes
// once and retries the call with the new token.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onTokens     func(ctx context.Context, t *api.TokenResponse)

	// refreshMu keeps concurrent callers from spending the same refresh
	// token twice.
	refreshMu sync.Mutex
}

var (
	_ Remote   = (*HTTPClient)(nil)
	_ Accounts = (*HTTPClient)(nil)
	_ Media    = (*HTTPClient)(nil)
	_ Pinger   = (*HTTPClient)(nil)
)

// NewHTTPClient returns a client for the backend at baseURL. A nil hc gets
// a client with a 15s timeout.
func NewHTTPClient(baseURL string, hc *http.Client, log logging.Logger) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		log:     log,
	}
}

func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

func (c *HTTPClient) OnTokens(fn func(ctx context.Context, t *api.TokenResponse)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTokens = fn
}

// AccessToken returns the current bearer token, empty before login.
func (c *HTTPClient) AccessToken() string {
	access, _ := c.tokens()
	return access
}

// BaseURL is the backend root the client was created with.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) Register(ctx context.Context, login, password string) (*api.TokenResponse, error) {
	return c.authenticate(ctx, api.PathRegister, login, password)
}

func (c *HTTPClient) Login(ctx context.Context, login, password string) (*api.TokenResponse, error) {
	return c.authenticate(ctx, api.PathLogin, login, password)
}

func (c *HTTPClient) authenticate(ctx context.Context, path, login, password string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.roundTrip(ctx, http.MethodPost, path, api.Credentials{Login: login, Password: password}, &resp, "")
	if err != nil {
		return nil, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

func (c *HTTPClient) Create(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error) {
	var resp api.Capsule
	if err := c.call(ctx, http.MethodPost, api.PathCapsules, CreateRequestFromNote(n), &resp); err != nil {
		return nil, err
	}
	return ToNote(&resp), nil
}

func (c *HTTPClient) Update(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error) {
	var resp api.Capsule
	if err := c.call(ctx, http.MethodPatch, capsulePath(n.ID), UpdateRequestFromNote(n), &resp); err != nil {
		return nil, err
	}
	return ToNote(&resp), nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string, version int64) error {
	path := capsulePath(id) + "?version=" + strconv.FormatInt(version, 10)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) Get(ctx context.Context, id string) (*models.GeoNote, error) {
	var resp api.Capsule
	if err := c.call(ctx, http.MethodGet, capsulePath(id), nil, &resp); err != nil {
		return nil, err
	}
	return ToNote(&resp), nil
}

func (c *HTTPClient) Nearby(ctx context.Context, p geo.Point, radiusMeters float64) ([]*models.GeoNote, error) {
	q := url.Values{}
	q.Set("near", p.String())
	q.Set("radius", strconv.FormatFloat(radiusMeters, 'f', -1, 64))

	var resp api.CapsuleList
	if err := c.call(ctx, http.MethodGet, api.PathCapsules+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	result := make([]*models.GeoNote, 0, len(resp.Capsules))
	for i := range resp.Capsules {
		result = append(result, ToNote(&resp.Capsules[i]))
	}
	return result, nil
}

func (c *HTTPClient) PresignUpload(ctx context.Context, contentType string) (*api.MediaUploadResponse, error) {
	var resp api.MediaUploadResponse
	if err := c.call(ctx, http.MethodPost, api.PathMediaUploads, api.MediaUploadRequest{ContentType: contentType}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks the unauthenticated health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.roundTrip(ctx, http.MethodGet, api.PathHealth, nil, nil, "")
}

func capsulePath(id string) string {
	return api.PathCapsules + "/" + url.PathEscape(id)
}

// call performs an authenticated request, refreshing the access token once
// if the server reports it expired.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	access, _ := c.tokens()

	err := c.roundTrip(ctx, method, path, in, out, access)
	if !errors.Is(err, common.ErrTokenExpired) {
		return err
	}

	if err := c.refresh(ctx, access); err != nil {
		return err
	}

	access, _ = c.tokens()
	err = c.roundTrip(ctx, method, path, in, out, access)
	if errors.Is(err, common.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return err
}

func (c *HTTPClient) refresh(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	access, refresh := c.tokens()
	if access != stale {
		// another caller already refreshed
		return nil
	}
	if refresh == "" {
		return ErrAuthExpired
	}

	var resp api.TokenResponse
	err := c.roundTrip(ctx, http.MethodPost, api.PathRefresh, api.RefreshRequest{RefreshToken: refresh}, &resp, "")
	if err != nil {
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil || errors.Is(err, ErrAuthExpired) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}

	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	c.log.Debug(ctx, "access token refreshed")

	c.mu.Lock()
	fn := c.onTokens
	c.mu.Unlock()
	if fn != nil {
		fn(ctx, &resp)
	}
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, in, out any, token string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	return decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var e api.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)

	if resp.StatusCode == http.StatusConflict && e.Code == common.CodeVersionConflict {
		ce := &ConflictError{}
		if e.Current != nil {
			ce.Current = ToNote(e.Current)
		}
		return ce
	}

	return &StatusError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
}
