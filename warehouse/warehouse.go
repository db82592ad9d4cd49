/*
	Package warehouse fetches raw bytes over HTTP: catalog pages and
	the release tarballs themselves.

	One Controller wraps one http.Client with a fixed request timeout,
	so a stuck transport eventually fails instead of hanging.  Nothing
	here retries; callers decide whether a failure is fatal.
*/
package warehouse

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/cider"
)

// The catalog site serves some pages differently to unknown agents,
// so we announce ourselves as a mundane browser.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:95.0) Gecko/20100101 Firefox/95.0"

const requestTimeout = 120 * time.Second

type Controller struct {
	client *http.Client
}

func NewController() *Controller {
	return &Controller{
		client: &http.Client{Timeout: requestTimeout},
	}
}

/*
	FetchBytes resolves a URL to its full response body.

	May return errors of category:

	  - `cider.ErrTransport` -- connection failure, timeout, or any
	    non-success HTTP status.
*/
func (c *Controller) FetchBytes(ctx context.Context, url string) (_ []byte, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Errorf(cider.ErrUsage, "invalid url %q: %s", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Errorf(cider.ErrTransport, "fetching %s: %s", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// pass
	case resp.StatusCode == http.StatusNotFound:
		return nil, Errorf(cider.ErrTransport, "%s not found (HTTP 404)", url)
	default:
		return nil, Errorf(cider.ErrTransport, "HTTP %s from %s", resp.Status, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Errorf(cider.ErrTransport, "reading response body from %s: %s", url, err)
	}
	return body, nil
}
