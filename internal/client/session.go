package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout bounds every ordinary call. The event stream
// uses a separate client because its read budget is the consumer's.
const defaultRequestTimeout = 10 * time.Second

// Session owns the bearer token and decorates every outbound request
// with it. One Session is constructed per credentials set; there is no
// process-wide shared state.
type Session struct {
	cfg    Config
	http   *http.Client
	stream *http.Client
	logger *Logger

	token  string
	userID string
}

// NewSession validates the credentials and, when no token was supplied,
// performs exactly one password-grant exchange. The derived token is
// kept for the lifetime of the session; there is no automatic refresh.
func NewSession(ctx context.Context, cfg Config, logger *Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:    cfg,
		http:   &http.Client{Timeout: defaultRequestTimeout},
		stream: &http.Client{},
		logger: logger,
	}
	if cfg.AccessToken != "" {
		s.token = cfg.AccessToken
		s.userID = cfg.UserID
		return s, nil
	}
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Token() string  { return s.token }
func (s *Session) UserID() string { return s.userID }

type passwordGrantResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

type authErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (s *Session) authenticate(ctx context.Context) error {
	grantURL := strings.TrimRight(s.cfg.AuthURL, "/") + "/auth/v1/token?grant_type=password"
	payload, err := json.Marshal(map[string]string{
		"email":    s.cfg.Email,
		"password": s.cfg.Password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, grantURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.cfg.AuthAnonKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.AuthAnonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "password grant", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "password grant", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		var authErr authErrorResponse
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &authErr) == nil {
			if authErr.ErrorDescription != "" {
				reason = authErr.ErrorDescription
			} else if authErr.Error != "" {
				reason = authErr.Error
			}
		}
		return &AuthError{Reason: reason}
	}

	var grant passwordGrantResponse
	if err := json.Unmarshal(body, &grant); err != nil {
		return &AuthError{Reason: fmt.Sprintf("malformed token response: %v", err)}
	}
	if grant.AccessToken == "" {
		return &AuthError{Reason: "token endpoint returned no access_token"}
	}

	s.token = grant.AccessToken
	s.userID = grant.User.ID
	s.logger.Info("authenticated", map[string]any{"user": grant.User.Email})
	return nil
}

// Request performs a backend API call with the bearer token attached.
// It returns the response body and status, mapping 402 to
// PaymentRequiredError, 401 to AuthError and any other non-2xx to
// BackendError. Transport failures become NetworkError.
func (s *Session) Request(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	fullURL := strings.TrimRight(s.cfg.BackendURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, 0, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &NetworkError{Op: method + " " + path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return respBody, resp.StatusCode, &PaymentRequiredError{Body: string(respBody)}
	case resp.StatusCode == http.StatusUnauthorized:
		return respBody, resp.StatusCode, &AuthError{Reason: "invalid token"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return respBody, resp.StatusCode, &BackendError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, resp.StatusCode, nil
}

// AuthRequest performs an identity-provider REST call (accounts,
// projects, threads, messages) with the apikey and bearer headers set.
func (s *Session) AuthRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	fullURL := strings.TrimRight(s.cfg.AuthURL, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.cfg.AuthAnonKey)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, &BackendError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// StreamRequest opens a long-lived backend request with no client-side
// timeout. The caller owns the response body.
func (s *Session) StreamRequest(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	fullURL := strings.TrimRight(s.cfg.BackendURL, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.stream.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "GET " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &BackendError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// CurrentUser fetches the identity-provider view of the logged-in user.
func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	var user User
	body, err := s.AuthRequest(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if err != nil {
		return user, err
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return user, fmt.Errorf("malformed user response: %w", err)
	}
	return user, nil
}
