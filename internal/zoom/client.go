// Package zoom is a small client for the Zoom REST API, webhook payloads and
// Meeting SDK signatures.
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAPIBaseURL is the Zoom REST API root.
	DefaultAPIBaseURL = "https://api.zoom.us/v2"
	// DefaultOAuthBaseURL is the Zoom OAuth root.
	DefaultOAuthBaseURL = "https://zoom.us"
	// UnknownHost is used when the host cannot be resolved.
	UnknownHost = "Unknown"

	tokenRefreshMargin = 60 * time.Second
	recordingsPageSize = 300
	meetingsPageSize   = 300

	// MeetingTypeScheduled lists every scheduled meeting of a user.
	MeetingTypeScheduled = "scheduled"
)

// AuthError is returned when a token cannot be issued or the API refuses it.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("zoom auth: %v", e.Err)
	}
	return fmt.Sprintf("zoom auth: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx API response other than an authorisation failure.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config holds Zoom server-to-server OAuth settings.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	OAuthBaseURL string
	LookbackDays int
}

// Client calls the Zoom API with a cached account-credentials token.
type Client struct {
	cfg    Config
	http   *http.Client
	cache  TokenCache
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClient creates a Zoom client. cache may be nil.
func NewClient(cfg Config, httpClient *http.Client, cache TokenCache, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = DefaultOAuthBaseURL
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.OAuthBaseURL = strings.TrimRight(cfg.OAuthBaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, cache: cache, logger: logger, now: time.Now}
}

// AccessToken returns a valid token, refreshing when it expires within a minute.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Add(tokenRefreshMargin).Before(c.expiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if c.cache != nil {
		token, expiry, err := c.cache.Get(ctx)
		if err != nil {
			c.logger.Warn("zoom token cache read failed", zap.Error(err))
		} else if token != "" && c.now().Add(tokenRefreshMargin).Before(expiry) {
			c.store(token, expiry)
			return token, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh requests a new account-credentials token regardless of the cached one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	expiry := c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.store(tr.AccessToken, expiry)
	if c.cache != nil {
		if err := c.cache.Set(ctx, tr.AccessToken, expiry); err != nil {
			c.logger.Warn("zoom token cache write failed", zap.Error(err))
		}
	}
	c.logger.Info("zoom access token refreshed", zap.Time("expires_at", expiry))
	return tr.AccessToken, nil
}

func (c *Client) store(token string, expiry time.Time) {
	c.mu.Lock()
	c.token = token
	c.expiry = expiry
	c.mu.Unlock()
}

// getJSON performs an authorised GET. A 401 forces one refresh and retry.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	status, body, err := c.get(ctx, path, query, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.logger.Info("zoom token rejected, refreshing", zap.String("path", path))
		if token, err = c.Refresh(ctx); err != nil {
			return err
		}
		if status, body, err = c.get(ctx, path, query, token); err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &AuthError{StatusCode: status, Body: string(body)}
		}
	}
	if status < 200 || status > 299 {
		return &APIError{Method: http.MethodGet, Path: path, StatusCode: status, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string) (int, []byte, error) {
	u := c.cfg.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("zoom GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

// GetUser returns a user by id, or the token owner for "me".
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// HostName resolves a host's display name, falling back to UnknownHost.
func (c *Client) HostName(ctx context.Context, hostID string) string {
	if hostID == "" {
		return UnknownHost
	}
	u, err := c.GetUser(ctx, hostID)
	if err != nil {
		c.logger.Warn("resolve host name failed", zap.String("host_id", hostID), zap.Error(err))
		return UnknownHost
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return UnknownHost
	}
	return name
}

// ListRecordings returns all cloud recordings of userID within the lookback window, following pagination.
func (c *Client) ListRecordings(ctx context.Context, userID string) ([]RecordingMeeting, error) {
	now := c.now().UTC()
	query := url.Values{}
	query.Set("from", now.AddDate(0, 0, -c.cfg.LookbackDays).Format("2006-01-02"))
	query.Set("to", now.Format("2006-01-02"))
	query.Set("page_size", fmt.Sprint(recordingsPageSize))

	var meetings []RecordingMeeting
	path := "/users/" + url.PathEscape(userID) + "/recordings"
	for {
		var page ListRecordingsResponse
		if err := c.getJSON(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		meetings = append(meetings, page.Meetings...)
		if page.NextPageToken == "" {
			break
		}
		query.Set("next_page_token", page.NextPageToken)
	}
	c.logger.Info("zoom recordings listed", zap.String("user_id", userID), zap.Int("meetings", len(meetings)))
	return meetings, nil
}

// ListMeetings returns the meetings of userID of the given list type, following pagination.
func (c *Client) ListMeetings(ctx context.Context, userID, meetingType string) ([]Meeting, error) {
	if meetingType == "" {
		meetingType = MeetingTypeScheduled
	}
	query := url.Values{}
	query.Set("type", meetingType)
	query.Set("page_size", fmt.Sprint(meetingsPageSize))

	var meetings []Meeting
	path := "/users/" + url.PathEscape(userID) + "/meetings"
	for {
		var page ListMeetingsResponse
		if err := c.getJSON(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("list meetings: %w", err)
		}
		meetings = append(meetings, page.Meetings...)
		if page.NextPageToken == "" {
			break
		}
		query.Set("next_page_token", page.NextPageToken)
	}
	c.logger.Info("zoom meetings listed", zap.String("user_id", userID), zap.Int("meetings", len(meetings)))
	return meetings, nil
}

// GetMeeting returns the live details of one meeting.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*Meeting, error) {
	var m Meeting
	if err := c.getJSON(ctx, "/meetings/"+url.PathEscape(meetingID), nil, &m); err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return &m, nil
}

// IsNotFound reports whether err is or wraps a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// AuthorizeDownload appends the access token to a recording download URL.
func (c *Client) AuthorizeDownload(ctx context.Context, downloadURL string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid download url")
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
