package client

import (
	"errors"
	"strings"
	"time"
)

const defaultUserAgent = "timeline-poller-client"

// Options configures the transport and identity of a Client.
type Options struct {
	ignoreTLSCert bool
	APIKey        string
	UserAgent     string
	Timeout       time.Duration
	// IdleConns caps pooled keep-alive connections to the poller.
	IdleConns int
}

type Option func(*Options) error

// IgnoreTLSCert is for pollers behind self-signed certificates.
func IgnoreTLSCert() Option {
	return func(o *Options) error {
		o.ignoreTLSCert = true
		return nil
	}
}

// APIKey is sent as a bearer token on every request.
func APIKey(key string) Option {
	return func(o *Options) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("api key must not be empty")
		}
		o.APIKey = key
		return nil
	}
}

// Timeout bounds a whole request. Timeline fetches page with pauses of
// several seconds, so keep it generous.
func Timeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		o.Timeout = timeout
		return nil
	}
}

func UserAgent(ua string) Option {
	return func(o *Options) error {
		o.UserAgent = ua
		return nil
	}
}

func IdleConns(n uint) Option {
	return func(o *Options) error {
		o.IdleConns = int(n)
		return nil
	}
}

func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		UserAgent: defaultUserAgent,
		Timeout:   5 * time.Minute,
		IdleConns: 4,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
