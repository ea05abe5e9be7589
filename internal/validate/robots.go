package validate

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsAllowed fetches the host's robots.txt and tests the page path for
// our user agent. A missing or unreachable robots.txt allows everything; a
// 5xx answer disallows everything, following robotstxt's status handling.
func (v *Validator) robotsAllowed(ctx context.Context, pageURL string) (bool, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false, eris.Wrapf(err, "validate: parse %s", pageURL)
	}
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()

	resp, err := v.fetcher.Get(ctx, robotsURL)
	if err != nil {
		v.log.Debug("robots.txt unavailable", zap.String("url", robotsURL), zap.Error(err))
		return true, nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, v.userAgent), nil
}
