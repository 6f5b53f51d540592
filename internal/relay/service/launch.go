package service

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

// DefaultPage is the activity page a launch lands on when none is named.
const DefaultPage = "/C1-writing-correction-LTI.html"

// FileParam names the page to land on. It belongs to the receiver and is
// never stored with the launch.
const FileParam = "file"

// LaunchResult is what the front-end needs to continue after a launch.
type LaunchResult struct {
	// Token is empty in standalone mode.
	Token  string
	Mode   domain.LaunchMode
	Target string
}

// RedirectURL is Target with the token (when present) and mode appended.
func (r LaunchResult) RedirectURL() string {
	u, err := url.Parse(r.Target)
	if err != nil {
		return r.Target
	}
	q := u.Query()
	if r.Token != "" {
		q.Set("token", r.Token)
	}
	q.Set("mode", string(r.Mode))
	u.RawQuery = q.Encode()
	return u.String()
}

type LaunchService struct {
	Sessions    store.Sessions
	DefaultPage string
	Metrics     *metrics.Metrics
}

// Launch classifies the merged launch parameters, stores a session when
// there is anything to store and works out where the browser goes next.
// A failure to store the session degrades the launch to standalone.
func (s *LaunchService) Launch(ctx context.Context, values url.Values, host string) LaunchResult {
	log := slogx.FromContext(ctx)

	page := values.Get(FileParam)
	values = withoutParam(values, FileParam)

	params := domain.NewLaunchParams(values)
	result := LaunchResult{
		Mode:   params.Mode(),
		Target: TargetURL(host, page, s.DefaultPage),
	}

	if result.Mode != domain.ModeStandalone {
		sess, err := s.Sessions.Create(ctx, params)
		if err != nil {
			log.Error("failed to create launch session, continuing standalone",
				slog.String("mode", string(result.Mode)),
				slog.Any("error", err),
			)
			result.Mode = domain.ModeStandalone
		} else {
			result.Token = sess.Token
		}
	}

	s.Metrics.Launch(string(result.Mode))
	log.Info("launch received",
		slog.String("mode", string(result.Mode)),
		slog.Int("params", params.Len()),
		slog.String("session", cryptox.ShortFingerprint(result.Token)),
	)
	return result
}

// TargetURL builds https://host/<page> from the base name of page alone, so
// no directory from the request survives. An unusable page name falls back
// to defaultPage, then to DefaultPage.
func TargetURL(host, page, defaultPage string) string {
	if host == "" {
		host = "localhost"
	}
	name := PageName(page)
	if name == "" {
		name = PageName(defaultPage)
	}
	if name == "" {
		name = PageName(DefaultPage)
	}
	return (&url.URL{Scheme: "https", Host: host, Path: "/" + name}).String()
}

// PageName returns the last element of p, treating backslashes as
// separators. It returns "" for names that do not denote a file.
func PageName(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	name := path.Base(p)
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

func withoutParam(values url.Values, key string) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		if k != key {
			out[k] = vs
		}
	}
	return out
}
