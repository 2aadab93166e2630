package proxy

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind is the proxy protocol, determined during checking.
type Kind string

const (
	KindUnknown Kind = ""
	KindHTTP    Kind = "http"
	KindHTTPS   Kind = "https"
	KindSOCKS4  Kind = "socks4"
	KindSOCKS5  Kind = "socks5"
)

// Anonymity is the level a check assigns to a proxy.
type Anonymity string

const (
	AnonUnknown     Anonymity = ""
	AnonTransparent Anonymity = "transparent"
	AnonAnonymous   Anonymity = "anonymous"
	AnonElite       Anonymity = "elite"
)

// DefaultDelimiter separates fields in the flat text format.
const DefaultDelimiter = ":"

// Proxy is a single proxy endpoint. Identity is (Host, Port) only; every
// other field is an observation recorded by checking and may change.
type Proxy struct {
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
	Kind     Kind      `json:"kind,omitempty"`
	Anon     Anonymity `json:"anon,omitempty"`
	Speed    float64   `json:"speed,omitempty"` // seconds
	Status   string    `json:"status,omitempty"`
}

// Key identifies a proxy for deduplication purposes.
type Key struct {
	Host string
	Port int
}

func (p Proxy) Key() Key {
	return Key{Host: p.Host, Port: p.Port}
}

// Addr returns the dialable host:port form.
func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Proxy) HasAuth() bool {
	return p.Username != "" && p.Password != ""
}

func (p Proxy) String() string {
	return p.Addr()
}

// Format renders the proxy in the flat text form, host<delim>port, with
// credentials appended for private proxies.
func (p Proxy) Format(delim string) string {
	if delim == "" {
		delim = DefaultDelimiter
	}
	host := p.Host
	if delim == ":" && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	s := host + delim + strconv.Itoa(p.Port)
	if p.HasAuth() {
		s += delim + p.Username + delim + p.Password
	}
	return s
}

// ParseError reports a line that could not be parsed as a proxy.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse proxy %q: %s", e.Line, e.Reason)
}

// Parse parses a single host<delim>port or host<delim>port<delim>user<delim>pass
// line. The delimiter defaults to ":".
func Parse(line, delim string) (Proxy, error) {
	if delim == "" {
		delim = DefaultDelimiter
	}

	trimmed := strings.TrimSpace(line)

	var fields []string
	if delim == ":" && strings.HasPrefix(trimmed, "[") {
		// Bracketed IPv6 literal: [host]:port, optionally with credentials
		end := strings.Index(trimmed, "]")
		if end < 0 || !strings.HasPrefix(trimmed[end+1:], ":") {
			return Proxy{}, &ParseError{Line: line, Reason: "malformed bracketed host"}
		}
		fields = append([]string{trimmed[1:end]}, strings.Split(trimmed[end+2:], ":")...)
	} else {
		fields = strings.Split(trimmed, delim)
	}
	if len(fields) != 2 && len(fields) != 4 {
		return Proxy{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 2 or 4 fields, got %d", len(fields))}
	}

	host := strings.TrimSpace(fields[0])
	if err := validateHost(host); err != nil {
		return Proxy{}, &ParseError{Line: line, Reason: err.Error()}
	}

	port, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Proxy{}, &ParseError{Line: line, Reason: "port is not numeric"}
	}
	if port < 1 || port > 65535 {
		return Proxy{}, &ParseError{Line: line, Reason: fmt.Sprintf("port %d out of range", port)}
	}

	p := Proxy{Host: host, Port: port}
	if len(fields) == 4 {
		p.Username = fields[2]
		p.Password = fields[3]
	}

	return p, nil
}

// validateHost accepts IP literals and plain hostnames. Anything that looks
// like a dotted-quad must actually parse as an IP, so "999.999.999.999" is
// rejected instead of passing as a hostname.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if isDigitsAndDots(host) {
		return fmt.Errorf("invalid IP literal %q", host)
	}
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '.':
		default:
			return fmt.Errorf("invalid hostname character %q", r)
		}
	}
	if strings.HasPrefix(host, "-") || strings.HasPrefix(host, ".") {
		return fmt.Errorf("invalid hostname %q", host)
	}
	return nil
}

func isDigitsAndDots(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
