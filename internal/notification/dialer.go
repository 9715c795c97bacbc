package notification

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/trusttai/api/internal/sse"
)

// HTTPDialer opens the admin event stream over plain HTTP(S).
type HTTPDialer struct {
	URL     string
	AdminID string

	// Client defaults to a client without a timeout; a response timeout
	// would cut off the stream.
	Client *http.Client
}

func (d *HTTPDialer) Dial(ctx context.Context) (io.ReadCloser, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing stream url: %w", err)
	}
	q := u.Query()
	q.Set(sse.AdminIDParam, d.AdminID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := d.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected status %d", resp.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	return resp.Body, nil
}
