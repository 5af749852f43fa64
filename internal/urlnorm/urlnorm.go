// Package urlnorm canonicalizes page URLs so that the crawler can use them
// as deduplication keys.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrNotAbsolute is returned when the input has no scheme or host.
	ErrNotAbsolute = errors.New("url is not absolute")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("url scheme must be http or https")
)

// defaultPorts maps a scheme to the port that is implied when none is given.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns the canonical form of raw.
//
// The steps run in a fixed order: the fragment is dropped, query parameters
// are sorted by key and then by value, trailing slashes are removed unless
// the path is the root, the default port is dropped and the scheme and host
// are lowercased. Normalize(Normalize(u)) == Normalize(u) for every URL that
// normalizes without error.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrNotAbsolute
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[u.Scheme]; !ok {
		return "", ErrUnsupportedScheme
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = sortQuery(u.RawQuery)
	u.ForceQuery = false

	u.Path = trimTrailingSlash(u.Path)
	u.RawPath = ""

	u.Host = normalizeHost(u.Scheme, u.Host)
	u.User = nil

	return u.String(), nil
}

// MustNormalize is like Normalize but returns raw unchanged on failure.
// It is meant for log fields and map keys where an error cannot be handled.
func MustNormalize(raw string) string {
	n, err := Normalize(raw)
	if err != nil {
		return raw
	}
	return n
}

// Host returns the lowercased hostname of raw without a port.
func Host(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", ErrNotAbsolute
	}
	return strings.ToLower(u.Hostname()), nil
}

// SameHost reports whether raw points at host. Ports are ignored.
func SameHost(raw, host string) bool {
	h, err := Host(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(h, host)
}

// Resolve resolves href against base and returns the normalized result.
func Resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return Normalize(base.ResolveReference(ref).String())
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if port != defaultPorts[scheme] {
		return host
	}
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

func trimTrailingSlash(p string) string {
	if p == "" {
		return "/"
	}
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

type queryPair struct {
	key   string
	value string
}

// sortQuery orders the raw query by decoded key, then decoded value, and
// re-encodes it. Pairs that cannot be decoded are kept verbatim.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}

	pairs := make([]queryPair, 0, strings.Count(raw, "&")+1)
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		pairs = append(pairs, queryPair{key: k, value: v})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
