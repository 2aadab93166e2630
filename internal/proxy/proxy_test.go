package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHostPort(t *testing.T) {
	p, err := Parse("203.0.113.7:8080", ":")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", p.Host)
	require.Equal(t, 8080, p.Port)
	require.False(t, p.HasAuth())
	require.Equal(t, KindUnknown, p.Kind)
}

func TestParseWithCredentials(t *testing.T) {
	p, err := Parse("203.0.113.7:8080:alice:s3cret", ":")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", p.Host)
	require.Equal(t, 8080, p.Port)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, "s3cret", p.Password)
	require.True(t, p.HasAuth())
}

func TestParseHostname(t *testing.T) {
	p, err := Parse("proxy.example.com:3128", ":")
	require.NoError(t, err)
	require.Equal(t, "proxy.example.com", p.Host)
	require.Equal(t, 3128, p.Port)
}

func TestParseCustomDelimiter(t *testing.T) {
	p, err := Parse("203.0.113.7;8080", ";")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", p.Host)
	require.Equal(t, 8080, p.Port)
}

func TestParseRejectsMalformedLines(t *testing.T) {
	bad := []string{
		"",
		"203.0.113.7",
		"203.0.113.7:8080:user",
		"203.0.113.7:8080:user:pass:extra",
		"203.0.113.7:0",
		"203.0.113.7:65536",
		"203.0.113.7:notaport",
		":8080",
		"999.999.999.999:70000",
		"256.1.2.3:8080",
		"bad host!:8080",
	}

	for _, line := range bad {
		_, err := Parse(line, ":")
		require.Error(t, err, "line %q should not parse", line)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr, "line %q should yield a parse error", line)
	}
}

func TestParseBracketedIPv6(t *testing.T) {
	p, err := Parse("[2001:db8::1]:8080", ":")
	require.NoError(t, err)
	require.Equal(t, "2001:db8::1", p.Host)
	require.Equal(t, 8080, p.Port)
	require.Equal(t, "[2001:db8::1]:8080", p.Addr())

	p, err = Parse("[::1]:8080:alice:s3cret", ":")
	require.NoError(t, err)
	require.Equal(t, "::1", p.Host)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, "s3cret", p.Password)
}

func TestParseRejectsMalformedBrackets(t *testing.T) {
	for _, line := range []string{
		"[::1:8080",
		"[::1]8080",
		"[::1]:",
		"[999.999.999.999]:8080",
	} {
		_, err := Parse(line, ":")
		require.Error(t, err, "line %q should not parse", line)
	}
}

func TestFormatBracketsIPv6(t *testing.T) {
	p := Proxy{Host: "2001:db8::1", Port: 8080}
	require.Equal(t, "[2001:db8::1]:8080", p.Format(":"))

	// A non-colon delimiter needs no brackets
	require.Equal(t, "2001:db8::1;8080", p.Format(";"))
}

func TestFormatRoundTrip(t *testing.T) {
	for _, line := range []string{
		"203.0.113.7:8080",
		"203.0.113.7:8080:alice:s3cret",
	} {
		p, err := Parse(line, ":")
		require.NoError(t, err)
		require.Equal(t, line, p.Format(":"))
	}
}

func TestFormatOmitsCredentialsWhenAbsent(t *testing.T) {
	p := Proxy{Host: "203.0.113.7", Port: 8080}
	require.Equal(t, "203.0.113.7:8080", p.Format(":"))
}

func TestIdentityIgnoresCredentialsAndKind(t *testing.T) {
	a := Proxy{Host: "203.0.113.7", Port: 8080, Username: "alice", Kind: KindHTTP}
	b := Proxy{Host: "203.0.113.7", Port: 8080, Username: "bob", Kind: KindSOCKS5}
	require.Equal(t, a.Key(), b.Key())

	c := Proxy{Host: "203.0.113.7", Port: 8081}
	require.NotEqual(t, a.Key(), c.Key())
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet()

	require.True(t, s.Add(Proxy{Host: "203.0.113.7", Port: 8080}))
	require.False(t, s.Add(Proxy{Host: "203.0.113.7", Port: 8080, Username: "alice", Password: "x"}))
	require.True(t, s.Add(Proxy{Host: "203.0.113.8", Port: 8080}))
	require.Equal(t, 2, s.Len())

	// Re-adding a duplicate must not clobber the stored proxy
	p, ok := s.Get(Key{Host: "203.0.113.7", Port: 8080})
	require.True(t, ok)
	require.Empty(t, p.Username)
}

func TestSetPreservesInsertionOrder(t *testing.T) {
	s := NewSet()
	hosts := []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"}
	for _, h := range hosts {
		s.Add(Proxy{Host: h, Port: 1080})
	}

	all := s.All()
	require.Len(t, all, 3)
	for i, h := range hosts {
		require.Equal(t, h, all[i].Host)
	}
}

func TestSetRemoveAndClear(t *testing.T) {
	s := NewSet()
	s.Add(Proxy{Host: "10.0.0.1", Port: 1080})
	s.Add(Proxy{Host: "10.0.0.2", Port: 1080})

	require.True(t, s.Remove(Key{Host: "10.0.0.1", Port: 1080}))
	require.False(t, s.Remove(Key{Host: "10.0.0.1", Port: 1080}))
	require.Equal(t, 1, s.Len())

	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.All())
}

func TestSetUpdate(t *testing.T) {
	s := NewSet()
	s.Add(Proxy{Host: "10.0.0.1", Port: 1080})

	updated := Proxy{Host: "10.0.0.1", Port: 1080, Kind: KindSOCKS5, Speed: 0.42}
	require.True(t, s.Update(updated))

	p, ok := s.Get(Key{Host: "10.0.0.1", Port: 1080})
	require.True(t, ok)
	require.Equal(t, KindSOCKS5, p.Kind)
	require.Equal(t, 0.42, p.Speed)

	// Update of an absent proxy is rejected
	require.False(t, s.Update(Proxy{Host: "10.0.0.9", Port: 1080}))
	require.Equal(t, 1, s.Len())
}
