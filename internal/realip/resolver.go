// Package realip looks up the caller's own public address through an
// external address-reporting service. A check batch needs that address to
// tell transparent proxies from anonymous ones.
package realip

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const DefaultServiceURL = "https://api.ipify.org"

type Resolver struct {
	serviceURL string
	client     *http.Client
}

func NewResolver(serviceURL string, timeout time.Duration) *Resolver {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	return &Resolver{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// Resolve fetches the public address. The service is expected to answer
// with the address as plain text.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.serviceURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", r.serviceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: HTTP %d", r.serviceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	addr := strings.TrimSpace(string(body))
	if net.ParseIP(addr) == nil {
		return "", fmt.Errorf("%s returned %q, not an IP address", r.serviceURL, addr)
	}

	return addr, nil
}
