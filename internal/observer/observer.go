// Package observer captures the bearer token the web application already
// sends with its own requests.
package observer

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// Header is one request header as reported by the browser.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type capture struct {
	token      string
	capturedAt time.Time
	source     string
}

// Observer owns the captured token. The zero value is not usable; call New.
type Observer struct {
	origin *url.URL
	last   atomic.Pointer[capture]
	now    func() time.Time
}

// New returns an observer for requests under origin.
func New(origin string) (*Observer, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, err
	}
	return &Observer{origin: u, now: time.Now}, nil
}

// Observe inspects one outbound request. Requests outside the origin are
// ignored. Every authorization header carrying a bearer credential replaces
// the captured token. Reports whether a token was captured.
func (o *Observer) Observe(requestURL string, headers []Header) bool {
	if !o.matches(requestURL) {
		return false
	}
	captured := false
	for _, h := range headers {
		if h.Name == "" || h.Value == "" || !strings.EqualFold(h.Name, "authorization") {
			continue
		}
		m := bearerPattern.FindStringSubmatch(h.Value)
		if m == nil {
			continue
		}
		o.last.Store(&capture{token: m[1], capturedAt: o.now(), source: requestURL})
		captured = true
	}
	return captured
}

// Token returns the current token, if any.
func (o *Observer) Token() (string, bool) {
	c := o.last.Load()
	if c == nil {
		return "", false
	}
	return c.token, true
}

// TokenInfo describes the captured token without exposing it.
type TokenInfo struct {
	Captured   bool       `json:"captured"`
	Masked     string     `json:"masked,omitempty"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
	Source     string     `json:"source,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Expired    bool       `json:"expired,omitempty"`
}

// Info summarizes the captured token. JWT claims are decoded for display
// only; the signature is never verified.
func (o *Observer) Info() TokenInfo {
	c := o.last.Load()
	if c == nil {
		return TokenInfo{}
	}
	at := c.capturedAt
	info := TokenInfo{
		Captured:   true,
		Masked:     Mask(c.token),
		CapturedAt: &at,
		Source:     c.source,
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return info
	}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = o.now().After(t)
	}
	return info
}

// Mask shortens a token for display: the first 6 and last 4 characters.
// Tokens of 12 characters or fewer are masked entirely.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	r := []rune(token)
	if len(r) <= 12 {
		return strings.Repeat("•", len(r))
	}
	return string(r[:6]) + "…" + string(r[len(r)-4:])
}

func (o *Observer) matches(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, o.origin.Scheme) && strings.EqualFold(u.Host, o.origin.Host)
}
