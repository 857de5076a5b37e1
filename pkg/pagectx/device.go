package pagectx

import (
	"regexp"
	"strings"
)

// DeviceType is the coarse device class reported with each call.
type DeviceType string

const (
	DeviceTablet  DeviceType = "tablet"
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
)

var (
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad|playbook`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|ip(hone|od)|android|blackberry|iemobile|kindle|netfront|silk-accelerated|(hpw|web)os|fennec|minimo|opera m(obi|ini)|blazer|dolfin|dolphin|skyfire|zune`)
)

// ClassifyDevice infers the device class from a user agent. Tablet patterns
// are evaluated first: tablet user agents usually match the mobile patterns
// too. Silk and Android without "Mobile" are tablets.
func ClassifyDevice(userAgent string) DeviceType {
	if tabletPattern.MatchString(userAgent) {
		return DeviceTablet
	}
	lower := strings.ToLower(userAgent)
	if strings.Contains(lower, "silk") && !strings.Contains(lower, "mobile") {
		return DeviceTablet
	}
	if strings.Contains(lower, "android") && !strings.Contains(lower, "mobi") {
		return DeviceTablet
	}
	if mobilePattern.MatchString(userAgent) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Signals are the contextual fields derived from a Provider. Nil pointers mean
// the source was unavailable.
type Signals struct {
	DeviceType *string
	Referrer   *string
	UserAgent  *string
}

// Collect reads p once. A nil provider behaves like None.
func Collect(p Provider) Signals {
	if p == nil {
		return Signals{}
	}
	var s Signals
	if ua, ok := p.UserAgent(); ok {
		dt := string(ClassifyDevice(ua))
		s.DeviceType = &dt
		s.UserAgent = &ua
	}
	if ref, ok := p.Referrer(); ok {
		s.Referrer = &ref
	}
	return s
}
