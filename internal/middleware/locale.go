package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// supportedLocales is the set the narration and document generators
// understand. The first entry is the matcher fallback.
var supportedLocales = []language.Tag{
	language.English,
	language.Indonesian,
	language.German,
	language.French,
	language.Spanish,
	language.Portuguese,
	language.Japanese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// countryLocales maps countries with a dominant supported language to the
// locale new records default to.
var countryLocales = map[string]string{
	"ID": "id",
	"DE": "de", "AT": "de", "CH": "de",
	"FR": "fr",
	"ES": "es", "MX": "es", "AR": "es", "CO": "es",
	"PT": "pt", "BR": "pt",
	"JP": "ja",
}

// Locale stores the caller's locale and country in the request context. The
// locale seeds generation params when the request body does not pick one.
func Locale(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale picks the request locale: an explicit X-Locale header wins,
// then Accept-Language, then the country default, then the configured
// fallback.
func detectLocale(r *http.Request, fallback, country string) string {
	if v := matchLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if v := matchLocale(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	if v, ok := countryLocales[strings.ToUpper(country)]; ok {
		return v
	}
	if country != "" {
		return "en"
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

// matchLocale matches an Accept-Language style header against the supported
// set and returns the base language code, or "" when nothing matches.
func matchLocale(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	base, _ := supportedLocales[idx].Base()
	return base.String()
}

// ResolveCountry resolves a best-effort ISO country code for the request:
// proxy-injected headers first, then a region the caller asked for by name,
// then the GeoIP lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"} {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return strings.ToUpper(v)
		}
	}
	if region := headerRegion(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := headerRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	// A plain Indonesian preference carries the same signal as an ID country
	// header.
	if matchLocale(r.Header.Get("X-Locale")) == "id" || matchLocale(r.Header.Get("Accept-Language")) == "id" {
		return "ID"
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// headerRegion extracts a region the caller named explicitly ("en-AU"),
// ignoring regions the matcher would only infer from the language.
func headerRegion(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}
	for _, t := range tags {
		region, conf := t.Region()
		if conf == language.Exact && region.IsCountry() {
			return region.String()
		}
	}
	return ""
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}
