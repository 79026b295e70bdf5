package hitcount

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// LoopbackIP is used when a request carries no address at all.
	LoopbackIP = "127.0.0.1"
	// SentinelIP replaces addresses that do not look like dotted-quad IPv4, typically
	// garbage injected by a misbehaving proxy.
	SentinelIP = "10.0.0.1"
	// MaxUserAgentLength matches the hit table column.
	MaxUserAgentLength = 255
)

// not meant to be a complete IPv4 validator
var ipPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Session is the visitor's session handle. Save must leave Key non-empty.
type Session interface {
	Key() string
	Save(ctx context.Context) error
}

// Request is the slice of an inbound HTTP request the resolver needs.
type Request struct {
	ForwardedFor string
	RemoteAddr   string
	UserAgent    string
	UserID       *uint
	Session      Session
}

// Fingerprint is the resolved visitor identity used for admission.
type Fingerprint struct {
	IP        string
	Session   string
	UserAgent string
	UserID    *uint
}

// Authenticated reports whether the visitor carries a user id.
func (f Fingerprint) Authenticated() bool {
	return f.UserID != nil
}

// IdentityResolver turns requests into fingerprints.
type IdentityResolver struct {
	useIP bool
}

// NewIdentityResolver builds a resolver honouring cfg.UseIP.
func NewIdentityResolver(cfg Config) *IdentityResolver {
	return &IdentityResolver{useIP: cfg.UseIP}
}

// Resolve extracts the fingerprint. A session without a key is saved first so that
// anonymous hits are always attributable to some session.
func (r *IdentityResolver) Resolve(ctx context.Context, req Request) (Fingerprint, error) {
	if req.Session == nil {
		return Fingerprint{}, errors.New("resolve identity: request has no session")
	}
	if req.Session.Key() == "" {
		if err := req.Session.Save(ctx); err != nil {
			return Fingerprint{}, fmt.Errorf("resolve identity: save session: %w", err)
		}
		if req.Session.Key() == "" {
			return Fingerprint{}, errors.New("resolve identity: session key still empty after save")
		}
	}

	fp := Fingerprint{
		Session:   req.Session.Key(),
		UserAgent: TruncateUserAgent(req.UserAgent),
		UserID:    req.UserID,
	}
	if r.useIP {
		fp.IP = ClientIP(req.ForwardedFor, req.RemoteAddr)
	}
	return fp, nil
}

// ClientIP picks X-Forwarded-For, then the connection address, then loopback. Values
// that do not start with a dotted quad are replaced by SentinelIP. With a proxy chain
// only the first address is kept.
func ClientIP(forwardedFor, remoteAddr string) string {
	probable := strings.TrimSpace(forwardedFor)
	if probable == "" {
		probable = stripPort(strings.TrimSpace(remoteAddr))
	}
	if probable == "" {
		probable = LoopbackIP
	}
	ip, err := matchIPv4(probable)
	if err != nil {
		return SentinelIP
	}
	return ip
}

func matchIPv4(s string) (string, error) {
	m := ipPattern.FindString(s)
	if m == "" {
		return "", fmt.Errorf("address %q: %w", s, ErrValidation)
	}
	return m, nil
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// TruncateUserAgent cuts ua to MaxUserAgentLength bytes without splitting a rune.
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := MaxUserAgentLength
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
