// Package oauthx implements the OAuth 1.0a request signing used by LTI 1.1
// outcome services: HMAC-SHA1 over the signature base string, with the
// request body bound through the oauth_body_hash extension.
package oauthx

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"

	ParamBodyHash        = "oauth_body_hash"
	ParamConsumerKey     = "oauth_consumer_key"
	ParamNonce           = "oauth_nonce"
	ParamSignature       = "oauth_signature"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamVersion         = "oauth_version"
)

var (
	ErrMissingConsumer = errors.New("oauthx: consumer key and secret are required")
	ErrInvalidURL      = errors.New("oauthx: invalid request url")
	ErrBadSignature    = errors.New("oauthx: signature mismatch")
	ErrMissingHeader   = errors.New("oauthx: missing OAuth authorization header")
)

// Param is a single name/value pair of the signed parameter set.
type Param struct {
	Key   string
	Value string
}

// Signer produces OAuth 1.0a Authorization headers for a single consumer.
// Now and Nonce may be replaced in tests to make signatures reproducible.
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string

	Now   func() time.Time
	Nonce func() string
}

// Authorization is the outcome of signing one request.
type Authorization struct {
	// Params holds the oauth_* protocol parameters in sorted order,
	// excluding the signature.
	Params     []Param
	Signature  string
	BaseString string
}

// Header renders the Authorization header value, oauth_signature last.
func (a Authorization) Header() string {
	parts := make([]string, 0, len(a.Params)+1)
	for _, p := range a.Params {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, PercentEncode(p.Key), PercentEncode(p.Value)))
	}
	parts = append(parts, fmt.Sprintf(`%s="%s"`, ParamSignature, PercentEncode(a.Signature)))
	return "OAuth " + strings.Join(parts, ", ")
}

// Sign computes the body hash and signature for method, rawURL and body.
// Query parameters on rawURL take part in the signature, as RFC 5849
// requires, but are not repeated in the Authorization header.
func (s Signer) Sign(method, rawURL string, body []byte) (Authorization, error) {
	if s.ConsumerKey == "" || s.ConsumerSecret == "" {
		return Authorization{}, ErrMissingConsumer
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	nonce := defaultNonce
	if s.Nonce != nil {
		nonce = s.Nonce
	}

	oauthParams := []Param{
		{ParamBodyHash, BodyHash(body)},
		{ParamConsumerKey, s.ConsumerKey},
		{ParamNonce, nonce()},
		{ParamSignatureMethod, SignatureMethod},
		{ParamTimestamp, strconv.FormatInt(now().Unix(), 10)},
		{ParamVersion, Version},
	}

	base, err := BaseString(method, rawURL, oauthParams)
	if err != nil {
		return Authorization{}, err
	}

	return Authorization{
		Params:     oauthParams,
		Signature:  sign(base, s.ConsumerSecret),
		BaseString: base,
	}, nil
}

// Verify checks an Authorization header produced for method, rawURL and
// body against the signer's secret. The timestamp and nonce are taken from
// the header; freshness is the caller's concern.
func (s Signer) Verify(method, rawURL string, body []byte, header string) error {
	params, err := ParseHeader(header)
	if err != nil {
		return err
	}

	var got string
	signed := make([]Param, 0, len(params))
	for _, p := range params {
		if p.Key == ParamSignature {
			got = p.Value
			continue
		}
		signed = append(signed, p)
	}

	if v := lookup(signed, ParamBodyHash); v != BodyHash(body) {
		return fmt.Errorf("%w: body hash", ErrBadSignature)
	}
	if v := lookup(signed, ParamConsumerKey); v != s.ConsumerKey {
		return fmt.Errorf("%w: consumer key", ErrBadSignature)
	}

	base, err := BaseString(method, rawURL, signed)
	if err != nil {
		return err
	}

	want := sign(base, s.ConsumerSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrBadSignature
	}
	return nil
}

// BodyHash returns base64(SHA-1(body)).
func BodyHash(body []byte) string {
	sum := sha1.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// BaseString builds the signature base string:
// METHOD & enc(base uri) & enc(normalized parameters).
func BaseString(method, rawURL string, params []Param) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	all := make([]Param, 0, len(params)+len(u.Query()))
	all = append(all, params...)
	for k, vs := range u.Query() {
		for _, v := range vs {
			all = append(all, Param{k, v})
		}
	}

	return strings.ToUpper(method) + "&" +
		PercentEncode(baseURI(u)) + "&" +
		PercentEncode(normalize(all)), nil
}

// PercentEncode applies RFC 3986 encoding: everything except the
// unreserved set A-Z a-z 0-9 - . _ ~ is escaped with upper-case hex.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// ParseHeader decodes an `OAuth k="v", ...` header into its parameters.
func ParseHeader(header string) ([]Param, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "OAuth ")
	if !ok {
		return nil, ErrMissingHeader
	}

	var params []Param
	for field := range strings.SplitSeq(rest, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("oauthx: malformed header field %q", field)
		}
		key, err := url.PathUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("oauthx: malformed header key: %w", err)
		}
		val, err := url.PathUnescape(strings.Trim(v, `"`))
		if err != nil {
			return nil, fmt.Errorf("oauthx: malformed header value: %w", err)
		}
		if key == "realm" {
			continue
		}
		params = append(params, Param{key, val})
	}
	return params, nil
}

func sign(base, secret string) string {
	mac := hmac.New(sha1.New, []byte(PercentEncode(secret)+"&"))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func baseURI(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "https" && port == "443") && !(scheme == "http" && port == "80") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func normalize(params []Param) string {
	encoded := make([]Param, len(params))
	for i, p := range params {
		encoded[i] = Param{PercentEncode(p.Key), PercentEncode(p.Value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].Key != encoded[j].Key {
			return encoded[i].Key < encoded[j].Key
		}
		return encoded[i].Value < encoded[j].Value
	})

	pairs := make([]string, len(encoded))
	for i, p := range encoded {
		pairs[i] = p.Key + "=" + p.Value
	}
	return strings.Join(pairs, "&")
}

func lookup(params []Param, key string) string {
	for _, p := range params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func defaultNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
