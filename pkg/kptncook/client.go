package kptncook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"kptnexport/pkg/config"
	errs "kptnexport/pkg/errors"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/ratelimit"
	"kptnexport/pkg/retry"
)

var (
	// ErrNotAuthenticated is returned by calls that need a token before Login succeeded
	ErrNotAuthenticated = errors.New("not authenticated: call Login first")

	// ErrMissingAPIKey is returned when no kptnkey is configured
	ErrMissingAPIKey = errors.New("KptnCook API key is not configured")

	// ErrRecipeNotFound is returned when the search endpoint yields no recipe
	ErrRecipeNotFound = errors.New("recipe not found")
)

// maxImageSize bounds a single image download
const maxImageSize = 32 << 20

// Client talks to the KptnCook API
type Client struct {
	httpClient    *http.Client
	baseURL       string
	mobileBaseURL string
	apiKey        string
	language      string
	userAgent     string
	limiter       ratelimit.Limiter
	retryConfig   *retry.Config
	imageTimeout  time.Duration
	logger        logger.Logger

	mu          sync.RWMutex
	accessToken string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithLimiter paces every request through l
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithRetry sets the retry policy for API calls
func WithRetry(rc *retry.Config) Option {
	return func(c *Client) {
		if rc != nil {
			c.retryConfig = rc
		}
	}
}

// WithImageTimeout bounds each image download, retries included
func WithImageTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.imageTimeout = d
	}
}

// WithAccessToken starts the client with an existing token
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// NewClient creates a client for the endpoints and key in cfg
func NewClient(cfg *config.KptnCookConfig, opts ...Option) *Client {
	if cfg == nil {
		def := config.DefaultConfig().KptnCook
		cfg = &def
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	mobileBaseURL := cfg.MobileBaseURL
	if mobileBaseURL == "" {
		mobileBaseURL = config.DefaultMobileBaseURL
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		mobileBaseURL: mobileBaseURL,
		apiKey:        cfg.APIKey,
		language:      cfg.Language,
		userAgent:     cfg.UserAgent,
		limiter:       ratelimit.Unlimited{},
		retryConfig:   &retry.Config{MaxAttempts: 1},
		logger:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryConfig.Logger == nil {
		c.retryConfig.Logger = c.logger
	}
	return c
}

// Login exchanges email and password for an access token and keeps it
// for the following calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	if email == "" || password == "" {
		return errs.New(errs.ErrorTypeAuth, 0, "email and password are required")
	}

	c.logger.DebugWithFields("logging in", map[string]interface{}{
		"email": email,
	})

	var resp LoginResponse
	headers := map[string]string{APIKeyHeader: c.apiKey}
	body := LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, GetLoginURL(c.baseURL), headers, body, &resp); err != nil {
		c.logger.WithError(err).Error("login failed")
		return err
	}
	if resp.AccessToken == "" {
		return errs.New(errs.ErrorTypeAuth, http.StatusOK, "login response carried no access token")
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.mu.Unlock()

	c.logger.Info("authenticated with KptnCook")
	return nil
}

// IsAuthenticated reports whether Login has stored a token
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

func (c *Client) tokenHeaders() (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken == "" {
		return nil, ErrNotAuthenticated
	}
	return map[string]string{TokenHeader: c.accessToken}, nil
}

// Favorites returns the identifiers of the user's favorite recipes in the
// order the API lists them.
func (c *Client) Favorites(ctx context.Context) ([]string, error) {
	headers, err := c.tokenHeaders()
	if err != nil {
		return nil, err
	}

	var resp FavoritesResponse
	if err := c.doJSON(ctx, http.MethodGet, GetFavoritesURL(c.baseURL), headers, nil, &resp); err != nil {
		c.logger.WithError(err).Error("failed to fetch favorites")
		return nil, err
	}

	ids := make([]string, 0, len(resp.Favorites))
	for _, id := range resp.Favorites {
		if id = SanitizeRecipeID(id); id != "" {
			ids = append(ids, id)
		}
	}

	c.logger.InfoWithFields("fetched favorites", map[string]interface{}{
		"count": len(ids),
	})
	return ids, nil
}

// RecipeDetails resolves a favorite identifier into the full recipe
func (c *Client) RecipeDetails(ctx context.Context, id string) (*APIRecipe, error) {
	headers, err := c.tokenHeaders()
	if err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	url := GetRecipeSearchURL(c.mobileBaseURL, c.apiKey, c.language)
	body := []SearchQuery{{Identifier: id}}

	var recipes []APIRecipe
	if err := c.doJSON(ctx, http.MethodPost, url, headers, body, &recipes); err != nil {
		c.logger.ErrorWithFields("failed to fetch recipe details", map[string]interface{}{
			"recipe_id": id,
			"error":     err.Error(),
		})
		return nil, err
	}
	if len(recipes) == 0 {
		c.logger.WarnWithFields("no recipe found for identifier", map[string]interface{}{
			"recipe_id": id,
		})
		return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, id)
	}

	return &recipes[0], nil
}

// DownloadImage fetches an image. Image URLs are public, so no token is
// sent and the API limiter is not consulted; callers pace image downloads
// themselves.
func (c *Client) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	if c.imageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.imageTimeout)
		defer cancel()
	}
	return retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) ([]byte, error) {
		resp, err := c.send(ctx, http.MethodGet, imageURL, nil, nil, false)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read image")
		}
		if len(data) > maxImageSize {
			return nil, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "image exceeds %d bytes", maxImageSize)
		}
		if len(data) == 0 {
			return nil, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "empty image body")
		}
		return data, nil
	})
}

// doJSON sends body as JSON and decodes the response into target, retrying
// transient failures.
func (c *Client) doJSON(ctx context.Context, method, url string, headers map[string]string, body, target interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errs.Wrap(errs.ErrorTypeParsing, 0, err, "failed to encode request")
		}
	}

	return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, url, headers, payload, true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read response body")
		}
		if target == nil {
			return nil
		}
		if err := json.Unmarshal(data, target); err != nil {
			preview := string(data)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          RedactURL(url),
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": preview,
			})
			return errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode, err, "failed to parse JSON")
		}
		return nil
	})
}

// send performs one request, paced by the API limiter when paced is set.
// Non-2xx responses are closed and returned as typed errors.
func (c *Client) send(ctx context.Context, method, url string, headers map[string]string, payload []byte, paced bool) (*http.Response, error) {
	logURL := RedactURL(url)

	if paced {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if waited := time.Since(waitStart); waited > 50*time.Millisecond {
			logger.LogRateLimit(c.logger, logURL, waited)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, 0, err, "failed to create request")
	}
	if paced {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "image/*,*/*;q=0.8")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      logURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, err, "network error")
	}

	logger.LogRequest(c.logger, method, logURL, resp.StatusCode, duration)

	if apiErr := errs.FromStatus(resp.StatusCode, logURL); apiErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, apiErr
	}
	return resp, nil
}
