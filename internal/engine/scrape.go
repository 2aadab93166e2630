package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/proxyscope/internal/proxy"
)

// Matches IP:PORT with an optional scheme prefix, the common shape of
// public proxy listings.
var proxyLineRegex = regexp.MustCompile(`(?:(socks5|socks4|https?)://)?(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d{2,5})`)

const maxSourceBody = 10 * 1024 * 1024

// scrapeWorker fetches proxy listings from its partition of source URLs.
// One result event per URL, one finished event at exit.
type scrapeWorker struct {
	id        int
	urls      []string
	client    *http.Client
	timeout   time.Duration
	delay     time.Duration
	userAgent string
	token     *Token
	events    chan<- event
}

func (w *scrapeWorker) run() {
	defer func() { w.events <- event{finished: true} }()

	for _, url := range w.urls {
		if w.token.Cancelled() {
			log.Debugf("Scrape worker %d cancelled", w.id)
			return
		}

		proxies, err := w.fetch(url)

		if w.delay > 0 {
			time.Sleep(w.delay)
		}

		result := ResultEvent{Action: ActionScrape, Proxies: proxies}
		if err != nil {
			result.Proxies = []proxy.Proxy{}
			result.Message = fmt.Sprintf("source %s: %v", url, err)
		} else if len(proxies) == 0 {
			result.Message = fmt.Sprintf("source %s: no proxies found", url)
		}
		w.events <- event{result: &result}
	}
}

func (w *scrapeWorker) fetch(url string) ([]proxy.Proxy, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return ExtractProxies(string(body)), nil
}

// ExtractProxies pulls proxy candidates out of a source response body.
// Matches that fail host or port validation are dropped.
func ExtractProxies(body string) []proxy.Proxy {
	matches := proxyLineRegex.FindAllStringSubmatch(body, -1)
	proxies := make([]proxy.Proxy, 0, len(matches))

	for _, m := range matches {
		p, err := proxy.Parse(m[2]+":"+m[3], ":")
		if err != nil {
			continue
		}
		switch m[1] {
		case "socks5":
			p.Kind = proxy.KindSOCKS5
		case "socks4":
			p.Kind = proxy.KindSOCKS4
		case "https":
			p.Kind = proxy.KindHTTPS
		case "http":
			p.Kind = proxy.KindHTTP
		}
		proxies = append(proxies, p)
	}

	return proxies
}
