package serverpool

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Prober checks whether a server at baseURL accepts requests.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// HTTPProber probes GET /health, which must answer 2xx. When it does not, any
// HTTP response to GET / is accepted: the server is listening and routing.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	err := p.get(ctx, baseURL+"/health", true)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	if err2 := p.get(ctx, baseURL+"/", false); err2 != nil {
		return fmt.Errorf("probe %s: %w", baseURL, err2)
	}
	return nil
}

func (p *HTTPProber) get(ctx context.Context, url string, requireOK bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if requireOK && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
