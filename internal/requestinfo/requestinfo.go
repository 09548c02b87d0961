// internal/requestinfo/requestinfo.go
//
// Per-request metadata (user-agent fingerprint, IP + geolocation, and
// timestamp) recorded alongside audit-log entries.  These structs are
// inert: no database handles, no large buffers, safe to log or
// JSON-encode.
//
// Dependencies
//   • github.com/avct/uasurfer          (UA parsing)
//   • github.com/oschwald/geoip2-golang (MaxMind lookup)

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
// Struct definitions
//

// UA holds the parsed user-agent properties the audit sink cares about.
type UA struct {
	Raw     string // entire User-Agent header
	Browser string // "Chrome", "Firefox", "Safari", …
	Version string // "125.0.6422"
	OS      string // "Windows", "MacOSX", "Linux", …
	Device  string // "Desktop", "Phone", "Tablet", …
	IsBot   bool
}

// Geo holds IP-based geolocation hints.  These are best-effort and may be
// empty when the database has no match or is not configured.
type Geo struct {
	IP         net.IP // original client address, not the X-Forwarded-For chain
	CountryISO string // "US", "CA", "FR", …
	City       string // "Chicago", "Paris", …
}

// RequestInfo is stored in the request context by the Enrich middleware and
// read back by the audit sink.
type RequestInfo struct {
	UA        UA
	Geo       Geo
	Timestamp time.Time
}

// Summary renders a short human string for audit details, e.g.
// "Chrome 125 on Windows (US)".  Empty fields are elided.
func (ri *RequestInfo) Summary() string {
	if ri == nil {
		return ""
	}
	s := ri.UA.Browser
	if ri.UA.Version != "" {
		s += " " + ri.UA.Version
	}
	if ri.UA.OS != "" {
		s += " on " + ri.UA.OS
	}
	if ri.Geo.CountryISO != "" {
		s += fmt.Sprintf(" (%s)", ri.Geo.CountryISO)
	}
	return s
}

//
// Package-level state
//

// geoReader is a singleton MaxMind handle.  Safe for concurrent reads,
// which is all we ever perform.  Nil when geolocation is not configured.
var geoReader *geoip2.Reader

// InitGeo opens the GeoLite2-City database at startup.  A missing or
// unreadable database is reported so main can decide whether to continue
// without geolocation.
func InitGeo(dbPath string) error {
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	geoReader = r
	return nil
}

//
// Context plumbing
//

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich, or nil when
// the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// WithInfo attaches info to ctx.  Exposed for tests and non-HTTP callers.
func WithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

//
// Internal helpers
//

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(raw string) UA {
	u := surfer.Parse(raw)

	// Enum renderings carry their type prefix ("BrowserChrome", "OSWindows");
	// strip it for human-readable audit summaries.
	info := UA{
		Raw:     raw,
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version: versionToString(u.Browser.Version),
		OS:      strings.TrimPrefix(u.OS.Name.String(), "OS"),
		IsBot:   u.IsBot(),
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Phone"
	default:
		info.Device = "Other"
	}
	return info
}

// versionToString renders a semantic version in dotted form while trimming
// trailing zeros, e.g. 17.0.0 → "17", 17.3.0 → "17.3", 17.3.1 → "17.3.1".
func versionToString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	if v.Patch != 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(v.Major)
}

// lookupGeo is nil-safe: without a configured reader it returns just the IP.
func lookupGeo(ip net.IP) Geo {
	g := Geo{IP: ip}
	if geoReader == nil || ip == nil {
		return g
	}
	rec, err := geoReader.City(ip)
	if err != nil {
		return g
	}
	g.CountryISO = rec.Country.IsoCode
	g.City = rec.City.Names["en"]
	return g
}
