package httpx

import (
	"maps"
	"net/http"
	"net/url"
)

// MaxFormBytes caps the size of a form or JSON body read by handlers.
const MaxFormBytes = 1 << 20

// MergedParams returns the query string parameters overlaid with any
// url-encoded POST body. When a key appears in both, the POST values win.
func MergedParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, MaxFormBytes)
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	merged := r.URL.Query()
	maps.Copy(merged, r.PostForm)
	return merged, nil
}
