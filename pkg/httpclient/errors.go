package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

const (
	maxBodyBytes  = 1 << 20
	maxErrSnippet = 256
)

// ParseResponseError consumes and closes a non-2xx response and maps it to an
// application error. Rate limiting and 5xx mean the upstream is unavailable;
// other statuses are reported as internal failures since they indicate a
// malformed request on our side.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrSnippet))
	cause := fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return apperrors.UpstreamUnavailable(upstream, cause)
	default:
		return apperrors.Internal(cause)
	}
}

// IsClientError reports whether status is a 4xx code.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
