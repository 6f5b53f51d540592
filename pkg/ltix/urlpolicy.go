// Package ltix holds the LTI 1.1 Basic Outcomes building blocks: the
// callback URL policy, the replaceResult envelope and grade extraction from
// free-form evaluator output.
package ltix

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is wrapped by every URLPolicy rejection. The wrapping error
// message carries the human-readable reason.
var ErrInvalidURL = errors.New("invalid outcome url")

// Rejection reasons reported by URLPolicy.Validate.
const (
	ReasonEmpty     = "empty URL"
	ReasonNotHTTPS  = "only HTTPS connections are allowed"
	ReasonDomain    = "non authorised domain"
	ReasonMalformed = "error in URL processing"
)

// URLPolicy decides whether an outcome service URL supplied by a launch may
// be called. Only HTTPS URLs on an allow-listed domain (or a subdomain of
// one) pass.
type URLPolicy struct {
	AllowedDomains []string
	BaseURL        string
}

// NewURLPolicy builds a policy from a comma separated domain list. Blank
// entries are dropped and domains are compared case-insensitively.
func NewURLPolicy(allowedDomainsCSV, baseURL string) URLPolicy {
	var domains []string
	for d := range strings.SplitSeq(allowedDomainsCSV, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return URLPolicy{AllowedDomains: domains, BaseURL: baseURL}
}

// Validate returns the resolved URL when raw is acceptable. A path starting
// with "/" is resolved against BaseURL first.
func (p URLPolicy) Validate(raw string) (string, error) {
	if raw == "" {
		return "", reject(ReasonEmpty)
	}

	resolved := raw
	if strings.HasPrefix(raw, "/") {
		resolved = strings.TrimRight(p.BaseURL, "/") + raw
	}

	u, err := url.Parse(resolved)
	if err != nil {
		return "", reject(ReasonMalformed)
	}

	if u.Scheme != "https" {
		return "", reject(ReasonNotHTTPS)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !p.allowed(host) {
		return "", reject(fmt.Sprintf("%s: %s", ReasonDomain, host))
	}

	return resolved, nil
}

func (p URLPolicy) allowed(host string) bool {
	for _, d := range p.AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func reject(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidURL, reason)
}

// Reason extracts the rejection reason from an error returned by Validate.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	_, reason, ok := strings.Cut(err.Error(), ErrInvalidURL.Error()+": ")
	if !ok {
		return err.Error()
	}
	return reason
}
