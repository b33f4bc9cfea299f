package session

import "time"

var _ Config = &ConfigObject{}

// ConfigObject is a plain-field implementation of Config.
type ConfigObject struct {
	BaseURL              string
	RequestTimeout       time.Duration
	ContextKey           string
	CookieDuration       time.Duration
	DefaultRoute         string
	LoginRoute           string
	OwnerHome            string
	RejectedRouteKey     string
	RejectedRouteDefault string
	TrustStoredAdminFlag bool
}

// NewConfig returns a ConfigObject with working defaults for the given API
// base URL.
func NewConfig(baseURL string) *ConfigObject {
	return &ConfigObject{
		BaseURL:              baseURL,
		RequestTimeout:       10 * time.Second,
		ContextKey:           "session",
		CookieDuration:       24 * time.Hour,
		DefaultRoute:         "/",
		LoginRoute:           "/login",
		OwnerHome:            "/owner",
		RejectedRouteKey:     "rejected_route",
		RejectedRouteDefault: "/",
		TrustStoredAdminFlag: true,
	}
}

func (c *ConfigObject) GetBaseURL() string {
	return c.BaseURL
}

func (c *ConfigObject) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return c.RequestTimeout
}

func (c *ConfigObject) GetContextKey() string {
	if c.ContextKey == "" {
		return "session"
	}
	return c.ContextKey
}

func (c *ConfigObject) GetCookieDuration() time.Duration {
	if c.CookieDuration <= 0 {
		return 24 * time.Hour
	}
	return c.CookieDuration
}

func (c *ConfigObject) GetDefaultRoute() string {
	if c.DefaultRoute == "" {
		return "/"
	}
	return c.DefaultRoute
}

func (c *ConfigObject) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

func (c *ConfigObject) GetOwnerHome() string {
	if c.OwnerHome == "" {
		return "/owner"
	}
	return c.OwnerHome
}

func (c *ConfigObject) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c *ConfigObject) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}

func (c *ConfigObject) GetTrustStoredAdminFlag() bool {
	return c.TrustStoredAdminFlag
}
