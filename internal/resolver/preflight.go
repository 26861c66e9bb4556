package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// preflight probes a candidate URL for reachability before it is accepted.
// Providers issue URLs that resolve but are not fetchable from the current
// network context; catching that here beats a silent failure deep inside the
// media engine. Servers that reject HEAD get a second chance with a one-byte
// ranged GET.
func preflight(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if !headRejected(resp.StatusCode) {
		return fmt.Errorf("pre-flight status=%d", resp.StatusCode)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err = client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1)) //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("pre-flight ranged get status=%d", resp.StatusCode)
}

// headRejected reports status codes where the server likely disallows HEAD
// but would serve a GET.
func headRejected(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusForbidden, http.StatusNotImplemented:
		return true
	}
	return false
}
