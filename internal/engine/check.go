package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	xproxy "golang.org/x/net/proxy"

	"github.com/proxyscope/internal/proxy"
)

// Header names a proxy that rewrites traffic tends to leave behind. Seeing
// any of these echoed by the judge, without the real address, classifies
// the proxy as anonymous rather than elite.
var revealingHeaders = []string{
	"VIA",
	"X-FORWARDED-FOR",
	"FORWARDED",
	"X-REAL-IP",
	"PROXY-CONNECTION",
}

const maxJudgeBody = 256 * 1024

// checkWorker probes its partition of (row, proxy) targets against the
// judge endpoint. One status event and one result event per target, one
// finished event at exit.
type checkWorker struct {
	id           int
	targets      []CheckTarget
	timeout      time.Duration
	delay        time.Duration
	judgeURL     string
	realAddr     string
	userAgent    string
	socksEnabled bool
	token        *Token
	events       chan<- event
}

func (w *checkWorker) run() {
	defer func() { w.events <- event{finished: true} }()

	for _, target := range w.targets {
		if w.token.Cancelled() {
			log.Debugf("Check worker %d cancelled", w.id)
			return
		}

		w.events <- event{status: &StatusEvent{Action: ActionCheck, Row: target.Row}}

		data, msg := w.probe(target.Proxy)

		w.events <- event{result: &ResultEvent{
			Action:  ActionCheck,
			Row:     target.Row,
			Check:   data,
			Message: msg,
		}}

		// The delay spaces consecutive probes; the result is already out.
		if w.delay > 0 {
			time.Sleep(w.delay)
		}
	}
}

// probe tries the candidate proxy with each plausible protocol until one
// completes a judge round trip. A proxy with a known kind is probed with
// that kind only.
func (w *checkWorker) probe(p proxy.Proxy) (*CheckData, string) {
	kinds := w.kindsToTry(p)
	if len(kinds) == 0 {
		return nil, fmt.Sprintf("proxy %s: SOCKS checking is disabled", p.Addr())
	}

	var lastErr error
	for _, kind := range kinds {
		haystack, elapsed, err := w.probeAs(p, kind)
		if err != nil {
			lastErr = err
			continue
		}
		return &CheckData{
			Kind:  kind,
			Anon:  Classify(haystack, w.realAddr),
			Speed: elapsed.Seconds(),
		}, ""
	}

	return nil, fmt.Sprintf("proxy %s: %v", p.Addr(), lastErr)
}

func (w *checkWorker) kindsToTry(p proxy.Proxy) []proxy.Kind {
	if p.Kind != proxy.KindUnknown {
		if (p.Kind == proxy.KindSOCKS4 || p.Kind == proxy.KindSOCKS5) && !w.socksEnabled {
			return nil
		}
		return []proxy.Kind{p.Kind}
	}
	kinds := []proxy.Kind{proxy.KindHTTP}
	if w.socksEnabled {
		kinds = append(kinds, proxy.KindSOCKS5, proxy.KindSOCKS4)
	}
	return kinds
}

// probeAs performs one GET to the judge through the proxy and returns the
// searchable response text (echoed headers plus body) and the elapsed
// wall-clock time.
func (w *checkWorker) probeAs(p proxy.Proxy, kind proxy.Kind) (string, time.Duration, error) {
	transport := &http.Transport{
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: w.timeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
	}

	switch kind {
	case proxy.KindHTTP, proxy.KindHTTPS:
		proxyURL := &url.URL{Scheme: "http", Host: p.Addr()}
		if p.HasAuth() {
			proxyURL.User = url.UserPassword(p.Username, p.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DialContext = (&net.Dialer{Timeout: w.timeout}).DialContext

	case proxy.KindSOCKS4, proxy.KindSOCKS5:
		var auth *xproxy.Auth
		if p.HasAuth() {
			auth = &xproxy.Auth{User: p.Username, Password: p.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", p.Addr(), auth, &net.Dialer{Timeout: w.timeout})
		if err != nil {
			return "", 0, fmt.Errorf("socks dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.(xproxy.ContextDialer).DialContext(ctx, network, addr)
		}

	default:
		return "", 0, fmt.Errorf("unsupported proxy kind %q", kind)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   w.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.judgeURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	req.Header.Set("Connection", "close")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("judge request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJudgeBody))
	elapsed := time.Since(start)
	if err != nil {
		return "", 0, fmt.Errorf("read judge response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("judge HTTP %d", resp.StatusCode)
	}

	var sb strings.Builder
	for name, values := range resp.Header {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(values, ","))
		sb.WriteString("\n")
	}
	sb.Write(body)

	return sb.String(), elapsed, nil
}

// Classify assigns an anonymity level from the judge response. The real
// address visible anywhere means transparent; proxy-revealing headers
// without it mean anonymous; a clean echo means elite.
func Classify(haystack, realAddr string) proxy.Anonymity {
	if realAddr != "" && strings.Contains(haystack, realAddr) {
		return proxy.AnonTransparent
	}

	upper := strings.ToUpper(strings.ReplaceAll(haystack, "_", "-"))
	for _, header := range revealingHeaders {
		if strings.Contains(upper, header) {
			return proxy.AnonAnonymous
		}
	}

	return proxy.AnonElite
}
