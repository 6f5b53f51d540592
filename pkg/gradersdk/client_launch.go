package gradersdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// LaunchPath is where the relay receives LTI launches.
const LaunchPath = "/lti/launch"

// Launch posts params to the launch endpoint as the LMS would, with origin
// as the Origin header. It asks for the JSON form of the result.
func (c *SDKClient) Launch(ctx context.Context, params url.Values, origin string) (*LaunchResponse, error) {
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}
	if origin != "" {
		headers["Origin"] = origin
	}

	resp, err := c.doRequest(ctx, http.MethodPost, LaunchPath, strings.NewReader(params.Encode()), headers)
	if err != nil {
		return nil, err
	}

	var out LaunchResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// LaunchRedirect performs a launch without asking for JSON and returns the
// redirect the relay answered with.
func (c *SDKClient) LaunchRedirect(ctx context.Context, params url.Values, origin string) (*LaunchResponse, error) {
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	if origin != "" {
		headers["Origin"] = origin
	}

	resp, err := c.doRequest(ctx, http.MethodPost, LaunchPath, strings.NewReader(params.Encode()), headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		body, _ := io.ReadAll(resp.Body)
		return nil, parseErrorResponse(resp, body)
	}

	location := resp.Header.Get("Location")
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect: %w", err)
	}
	q := u.Query()
	return &LaunchResponse{
		Token:    q.Get("token"),
		Mode:     q.Get("mode"),
		Location: location,
	}, nil
}

// GetLaunchInfo fetches the launch endpoint's status document.
func (c *SDKClient) GetLaunchInfo(ctx context.Context) (*LaunchInfo, error) {
	var info LaunchInfo
	if err := c.getJSON(ctx, LaunchPath, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
