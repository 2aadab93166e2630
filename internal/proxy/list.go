package proxy

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ReadList reads the flat text format, one proxy per line. Lines that fail
// to parse are skipped with a warning; they never fail the whole read.
// Blank lines and #-comments are ignored.
func ReadList(r io.Reader, delim string) ([]Proxy, error) {
	proxies := make([]Proxy, 0)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := Parse(line, delim)
		if err != nil {
			log.Warnf("Skipping invalid proxy line: %v", err)
			continue
		}
		proxies = append(proxies, p)
	}

	if err := scanner.Err(); err != nil {
		return proxies, fmt.Errorf("scan proxy list: %w", err)
	}

	return proxies, nil
}

// WriteList writes proxies in the flat text format, one per line.
func WriteList(w io.Writer, proxies []Proxy, delim string) error {
	bw := bufio.NewWriter(w)
	for _, p := range proxies {
		if _, err := bw.WriteString(p.Format(delim) + "\n"); err != nil {
			return fmt.Errorf("write proxy list: %w", err)
		}
	}
	return bw.Flush()
}
