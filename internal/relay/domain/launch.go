package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Well-known LTI 1.1 launch parameter names.
const (
	ParamOutcomeServiceURL = "lis_outcome_service_url"
	ParamResultSourcedID   = "lis_result_sourcedid"
	ParamConsumerKey       = "oauth_consumer_key"
)

// LaunchParams is the parameter set received from an LMS launch. The three
// fields needed to report an outcome are lifted out; everything else is kept
// verbatim in Extra.
type LaunchParams struct {
	OutcomeServiceURL string
	ResultSourcedID   string
	ConsumerKey       string
	Extra             map[string][]string
}

// LaunchMode tells the front-end which experience to render.
type LaunchMode string

const (
	ModeLTI        LaunchMode = "lti"
	ModePartial    LaunchMode = "partial"
	ModeStandalone LaunchMode = "standalone"
)

// NewLaunchParams keeps every key that has at least one non-empty value.
// For repeated keys the named fields take the first value.
func NewLaunchParams(values url.Values) LaunchParams {
	var p LaunchParams
	for k, vs := range values {
		vs = nonEmpty(vs)
		if len(vs) == 0 {
			continue
		}
		switch k {
		case ParamOutcomeServiceURL:
			p.OutcomeServiceURL = vs[0]
		case ParamResultSourcedID:
			p.ResultSourcedID = vs[0]
		case ParamConsumerKey:
			p.ConsumerKey = vs[0]
		default:
			if p.Extra == nil {
				p.Extra = make(map[string][]string)
			}
			p.Extra[k] = vs
		}
	}
	return p
}

// Len is the number of distinct non-empty parameters.
func (p LaunchParams) Len() int {
	n := len(p.Extra)
	for _, v := range []string{p.OutcomeServiceURL, p.ResultSourcedID, p.ConsumerKey} {
		if v != "" {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the launch carried no parameters at all.
func (p LaunchParams) IsEmpty() bool { return p.Len() == 0 }

// CanReportOutcome reports whether both outcome fields are present.
func (p LaunchParams) CanReportOutcome() bool {
	return p.OutcomeServiceURL != "" && p.ResultSourcedID != ""
}

// Mode classifies the launch: lti when outcomes can be reported, partial
// when some parameters arrived, standalone otherwise.
func (p LaunchParams) Mode() LaunchMode {
	switch {
	case p.CanReportOutcome():
		return ModeLTI
	case !p.IsEmpty():
		return ModePartial
	default:
		return ModeStandalone
	}
}

// Get returns the first value for key, named fields included.
func (p LaunchParams) Get(key string) string {
	switch key {
	case ParamOutcomeServiceURL:
		return p.OutcomeServiceURL
	case ParamResultSourcedID:
		return p.ResultSourcedID
	case ParamConsumerKey:
		return p.ConsumerKey
	}
	if vs := p.Extra[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// MarshalJSON writes the flat {"key": "value" | ["v1", "v2"]} form used by
// the session file format.
func (p LaunchParams) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, p.Len())
	for k, vs := range p.Extra {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			out[k] = vs
		}
	}
	if p.OutcomeServiceURL != "" {
		out[ParamOutcomeServiceURL] = p.OutcomeServiceURL
	}
	if p.ResultSourcedID != "" {
		out[ParamResultSourcedID] = p.ResultSourcedID
	}
	if p.ConsumerKey != "" {
		out[ParamConsumerKey] = p.ConsumerKey
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a string or a list of strings per key.
func (p *LaunchParams) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	values := make(url.Values, len(raw))
	for k, msg := range raw {
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			values[k] = []string{s}
			continue
		}
		var list []string
		if err := json.Unmarshal(msg, &list); err != nil {
			return fmt.Errorf("launch parameter %q: expected string or list of strings", k)
		}
		values[k] = list
	}

	*p = NewLaunchParams(values)
	return nil
}

func nonEmpty(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
