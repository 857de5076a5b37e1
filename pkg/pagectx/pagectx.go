// Package pagectx supplies the page-level signals attached to outbound
// tracking calls: referrer, user agent and the device class derived from it.
package pagectx

import (
	"net/http"
	"strings"
)

// Provider is the page context capability. Each accessor reports ok=false when
// the signal is not available in the current execution context.
type Provider interface {
	Referrer() (string, bool)
	UserAgent() (string, bool)
}

// None is the provider for non-browser execution: nothing is available.
type None struct{}

func (None) Referrer() (string, bool)  { return "", false }
func (None) UserAgent() (string, bool) { return "", false }

// Static serves fixed values. Empty fields are reported as unavailable.
type Static struct {
	ReferrerValue  string
	UserAgentValue string
}

func (s Static) Referrer() (string, bool) {
	return s.ReferrerValue, s.ReferrerValue != ""
}

func (s Static) UserAgent() (string, bool) {
	return s.UserAgentValue, s.UserAgentValue != ""
}

const (
	maxReferrerLen  = 2048
	maxUserAgentLen = 1024
)

// FromRequest captures the browser's signals from an incoming page request,
// for landing pages rendered server-side. The request is read once; the
// returned provider does not retain it.
func FromRequest(r *http.Request) Provider {
	if r == nil {
		return None{}
	}
	return Static{
		ReferrerValue:  sanitizeHeader(r.Referer(), maxReferrerLen),
		UserAgentValue: sanitizeHeader(r.UserAgent(), maxUserAgentLen),
	}
}

// sanitizeHeader trims, clamps to maxLen bytes and drops control characters.
func sanitizeHeader(v string, maxLen int) string {
	v = strings.TrimSpace(v)
	if maxLen > 0 && len(v) > maxLen {
		v = v[:maxLen]
	}
	return strings.Map(func(r rune) rune {
		if r >= 32 && r != 127 {
			return r
		}
		return -1
	}, v)
}
