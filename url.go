package tlscore

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsedURL is the decoded form of the transport-url grammar in spec.md §6:
//
//	transport-url := scheme "://" host ":" port [ "?" scope-id ]
//	scheme        := "tcp" | "tcp6"
//	host          := <empty> | ip-literal | dns-name   -- empty => bind-listen
//	port          := decimal
//	scope-id      := decimal                            -- only with tcp6
type ParsedURL struct {
	Scheme  string // "tcp" or "tcp6"
	Host    string // empty => bind-listen
	Port    int
	ScopeID uint32 // only meaningful when Scheme == "tcp6"
}

// IsBind reports whether this URL selects bind-listen mode: an empty host
// portion, e.g. "tcp://:4444" (spec.md §6, §8 law 9).
func (p ParsedURL) IsBind() bool {
	return p.Host == ""
}

// ParseURL parses a transport URL per spec.md §6.
func ParseURL(raw string) (ParsedURL, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return ParsedURL{}, fmt.Errorf("tlscore: url %q missing scheme", raw)
	}
	if scheme != "tcp" && scheme != "tcp6" {
		return ParsedURL{}, fmt.Errorf("tlscore: url %q has unsupported scheme %q", raw, scheme)
	}

	hostport := rest
	var scopeStr string
	if h, s, ok := strings.Cut(rest, "?"); ok {
		hostport = h
		scopeStr = s
	}

	host, portStr, err := splitHostPort(hostport, scheme)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("tlscore: url %q: %w", raw, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("tlscore: url %q has invalid port %q: %w", raw, portStr, err)
	}

	var scopeID uint32
	if scopeStr != "" {
		if scheme != "tcp6" {
			return ParsedURL{}, fmt.Errorf("tlscore: url %q: scope-id is only valid with tcp6", raw)
		}
		v, err := strconv.ParseUint(scopeStr, 10, 32)
		if err != nil {
			return ParsedURL{}, fmt.Errorf("tlscore: url %q has invalid scope-id %q: %w", raw, scopeStr, err)
		}
		scopeID = uint32(v)
	}

	return ParsedURL{Scheme: scheme, Host: host, Port: port, ScopeID: scopeID}, nil
}

// splitHostPort splits "host:port" allowing an empty host (bind-listen) and
// a bracketed IPv6 literal host.
func splitHostPort(hostport, scheme string) (host, port string, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated ipv6 literal in %q", hostport)
		}
		host = hostport[1:end]
		remainder := hostport[end+1:]
		if !strings.HasPrefix(remainder, ":") {
			return "", "", fmt.Errorf("missing port after ipv6 literal in %q", hostport)
		}
		return host, remainder[1:], nil
	}

	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("missing port in %q", hostport)
	}
	return hostport[:idx], hostport[idx+1:], nil
}
