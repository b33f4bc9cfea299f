package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ClientRoutes are the remote API paths, overridable per deployment.
type ClientRoutes struct {
	CurrentUser    string
	Login          string
	AdminLogin     string
	Register       string
	SendOTP        string
	VerifyOTP      string
	ForgotPassword string
	VerifyResetOTP string
	ResetPassword  string
}

func defaultClientRoutes() *ClientRoutes {
	return &ClientRoutes{
		CurrentUser:    "/api/user/data",
		Login:          "/api/user/login",
		AdminLogin:     "/api/admin/login",
		Register:       "/api/user/register",
		SendOTP:        "/api/otp/send",
		VerifyOTP:      "/api/otp/verify",
		ForgotPassword: "/api/user/forgot-password",
		VerifyResetOTP: "/api/user/verify-reset-otp",
		ResetPassword:  "/api/user/reset-password",
	}
}

var _ API = &Client{}

// Client talks JSON to the remote bookings API. Every response uses the
// common envelope; success=false and non-2xx statuses both surface as
// rejection errors carrying the server message.
type Client struct {
	baseURL string
	routes  *ClientRoutes
	http    *http.Client
	logger  Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientRoutes overrides the remote API paths.
func WithClientRoutes(routes *ClientRoutes) ClientOption {
	return func(c *Client) {
		if routes != nil {
			c.routes = routes
		}
	}
}

// WithClientLogger overrides the client logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		routes:  defaultClientRoutes(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

type apiEnvelope struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	Token      string   `json:"token,omitempty"`
	User       *Profile `json:"user,omitempty"`
	ResetToken string   `json:"resetToken,omitempty"`
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*Profile, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	env, err := c.do(ctx, http.MethodGet, c.routes.CurrentUser, token, nil)
	if err != nil {
		return nil, err
	}

	if env.User == nil {
		return nil, c.rejection(c.routes.CurrentUser, "response is missing the user profile")
	}

	return env.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.login(ctx, c.routes.Login, email, password)
}

func (c *Client) AdminLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.login(ctx, c.routes.AdminLogin, email, password)
}

func (c *Client) login(ctx context.Context, path, email, password string) (*AuthResult, error) {
	env, err := c.do(ctx, http.MethodPost, path, "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	if env.Token == "" {
		return nil, c.rejection(path, "login response is missing a token")
	}

	return &AuthResult{Token: env.Token, Profile: env.User, Message: env.Message}, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	env, err := c.do(ctx, http.MethodPost, c.routes.Register, "", req)
	if err != nil {
		return nil, err
	}

	// registration may or may not hand back a token
	return &AuthResult{Token: env.Token, Profile: env.User, Message: env.Message}, nil
}

func (c *Client) SendOTP(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPost, c.routes.SendOTP, "", map[string]string{"email": email})
	return err
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) error {
	_, err := c.do(ctx, http.MethodPost, c.routes.VerifyOTP, "", map[string]string{
		"email": email,
		"otp":   code,
	})
	return err
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPost, c.routes.ForgotPassword, "", map[string]string{"email": email})
	return err
}

func (c *Client) VerifyResetOTP(ctx context.Context, email, code string) (string, error) {
	env, err := c.do(ctx, http.MethodPost, c.routes.VerifyResetOTP, "", map[string]string{
		"email": email,
		"otp":   code,
	})
	if err != nil {
		return "", err
	}

	if env.ResetToken == "" {
		return "", c.rejection(c.routes.VerifyResetOTP, "response is missing the reset token")
	}

	return env.ResetToken, nil
}

func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	_, err := c.do(ctx, http.MethodPost, c.routes.ResetPassword, "", map[string]string{
		"resetToken": resetToken,
		"password":   password,
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*apiEnvelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "request to bookings API failed").
			WithTextCode(textCodeAPITransport).
			WithMetadata(map[string]any{"path": path})
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response body").
			WithTextCode(textCodeAPITransport).
			WithMetadata(map[string]any{"path": path})
	}

	env := &apiEnvelope{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, env); err != nil && resp.StatusCode < 300 {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response body").
				WithTextCode(textCodeAPITransport).
				WithMetadata(map[string]any{"path": path})
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("request rejected (status %d)", resp.StatusCode)
		}
		c.logger.Debug("API rejection", "path", path, "status", resp.StatusCode, "message", message)
		return nil, c.rejection(path, message)
	}

	return env, nil
}

func (c *Client) rejection(path, message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(textCodeAPIRejected).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{"path": path})
}
