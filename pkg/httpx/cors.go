package httpx

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Wildcard in an origin allow-list permits any origin, without credentials.
const Wildcard = "*"

// OriginPolicy is an exact-match origin allow-list used both for CORS
// response headers and for checking where a launch was posted from.
type OriginPolicy struct {
	Origins []string
	Methods []string
	Headers []string
}

// NewOriginPolicy parses a comma separated origin list. Entries are trimmed
// and a trailing slash is dropped, so "https://lms.example.edu/" and
// "https://lms.example.edu" are the same origin.
func NewOriginPolicy(originsCSV string) OriginPolicy {
	var origins []string
	for o := range strings.SplitSeq(originsCSV, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return OriginPolicy{
		Origins: origins,
		Headers: []string{"Content-Type"},
	}
}

// WithMethods returns a copy of the policy advertising methods.
func (p OriginPolicy) WithMethods(methods ...string) OriginPolicy {
	p.Methods = methods
	return p
}

// Allows reports whether origin is listed, or the list holds the wildcard.
func (p OriginPolicy) Allows(origin string) bool {
	return p.listed(origin) || p.wildcard()
}

func (p OriginPolicy) listed(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	return origin != "" && slices.Contains(p.Origins, origin)
}

func (p OriginPolicy) wildcard() bool {
	return slices.Contains(p.Origins, Wildcard)
}

// AllowsRequest checks the Origin header, then the origin of the Referer.
// A request carrying neither is not allowed.
func (p OriginPolicy) AllowsRequest(r *http.Request) bool {
	if origin := r.Header.Get("Origin"); origin != "" && p.Allows(origin) {
		return true
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if origin, ok := RefererOrigin(referer); ok && p.Allows(origin) {
			return true
		}
	}
	return false
}

// RefererOrigin reduces a Referer URL to scheme://host[:port].
func RefererOrigin(referer string) (string, bool) {
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

// SetHeaders writes the CORS response headers for r. A listed origin is
// echoed with credentials; otherwise a wildcard list yields "*" and
// anything else yields "null".
func (p OriginPolicy) SetHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Add("Vary", "Origin")

	origin := r.Header.Get("Origin")
	switch {
	case p.listed(origin):
		h.Set("Access-Control-Allow-Origin", strings.TrimRight(origin, "/"))
		h.Set("Access-Control-Allow-Credentials", "true")
	case p.wildcard():
		h.Set("Access-Control-Allow-Origin", Wildcard)
	default:
		h.Set("Access-Control-Allow-Origin", "null")
	}

	if len(p.Methods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(p.Methods, ", "))
	}
	if len(p.Headers) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(p.Headers, ", "))
	}
}

// CORS sets the policy headers on every response and answers OPTIONS
// preflights with an empty 200.
func CORS(p OriginPolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.SetHeaders(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
