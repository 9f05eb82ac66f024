package core

import "time"

type Config struct {
	// Where login redirects land when no usable return URL is given
	HomeURL string

	// Cookie attributes shared by all three cookies
	CookieDomain string
	CookieSecure bool

	// Lifetimes, in seconds
	StateTTL          int // state cookie lifetime (default 300)
	SecuredSessionTTL int // session_sid lifetime (default 30 days)
	RefreshLeeway     int // refresh when the access token is this close to expiry (default 600)
}

const (
	defaultStateTTL          = 300
	defaultSecuredSessionTTL = 30 * 24 * 60 * 60
	defaultRefreshLeeway     = 600
)

func (c *Config) StateTTLDuration() time.Duration {
	if c.StateTTL <= 0 {
		return defaultStateTTL * time.Second
	}
	return time.Duration(c.StateTTL) * time.Second
}

func (c *Config) SecuredSessionTTLDuration() time.Duration {
	if c.SecuredSessionTTL <= 0 {
		return defaultSecuredSessionTTL * time.Second
	}
	return time.Duration(c.SecuredSessionTTL) * time.Second
}

func (c *Config) RefreshLeewayDuration() time.Duration {
	if c.RefreshLeeway <= 0 {
		return defaultRefreshLeeway * time.Second
	}
	return time.Duration(c.RefreshLeeway) * time.Second
}
