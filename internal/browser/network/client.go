package network

import (
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Config tunes the static engine's HTTP client.
type Config struct {
	UserAgent         string
	RequestTimeout    time.Duration
	IgnoreTLSErrors   bool
	RequestsPerSecond float64
}

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) qandalf/1.0"

// Stack is the assembled client plus the trackers the page engine needs
// to reach back into.
type Stack struct {
	Client *http.Client
	Idle   *IdleTracker
}

// NewStack builds the layered transport: base TLS transport, request rate
// limiter, idle tracker, then compression on the outside so tracked
// bodies count decompressed reads.
func NewStack(cfg Config) (*Stack, error) {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.IgnoreTLSErrors {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = base
	if cfg.RequestsPerSecond > 0 {
		rt = &limitedTransport{
			next:    rt,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		}
	}
	idle := NewIdleTracker(rt)
	rt = NewCompressionMiddleware(idle)
	rt = &userAgentTransport{next: rt, agent: userAgentOr(cfg.UserAgent)}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Stack{
		Client: &http.Client{
			Transport: rt,
			Jar:       jar,
			Timeout:   timeout,
			// Redirects are followed manually by the page engine so it can
			// apply per-hop navigation rules.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Idle: idle,
	}, nil
}

func userAgentOr(agent string) string {
	if agent == "" {
		return DefaultUserAgent
	}
	return agent
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
