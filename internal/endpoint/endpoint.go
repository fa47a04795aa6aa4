// internal/endpoint/endpoint.go

// Package endpoint splits an absolute URL into the parts the HTTP
// collaborator needs, by positional scanning.
//
// Scanning order: the first "://" ends the protocol, the first "/" after it
// ends the host, userinfo up to the first "@" in the host is discarded, the
// first ":" in the host starts the port, and the first "?" in the path starts
// the query. Fragments are not recognised and stay in the path.
// Bracketed IPv6 hosts are not supported.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	ErrNoProtocol  = errors.New("endpoint: missing \"://\"")
	ErrEmptyHost   = errors.New("endpoint: empty host")
	ErrIPv6Literal = errors.New("endpoint: bracketed IPv6 hosts are not supported")
)

// Endpoint is a parsed absolute URL. Port and Query may be empty.
type Endpoint struct {
	Protocol string
	Host     string
	Port     string
	Path     string
	Query    string
}

// Parse splits s. Userinfo is dropped.
func Parse(s string) (Endpoint, error) {
	var ep Endpoint

	i := strings.Index(s, "://")
	if i < 0 {
		return ep, ErrNoProtocol
	}
	ep.Protocol = strings.ToLower(s[:i])
	rest := s[i+3:]

	host := rest
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		host = rest[:j]
		ep.Path = rest[j:]
	}

	if j := strings.IndexByte(host, '@'); j >= 0 {
		host = host[j+1:]
	}

	if strings.HasPrefix(host, "[") {
		return Endpoint{}, ErrIPv6Literal
	}

	if j := strings.IndexByte(host, ':'); j >= 0 {
		ep.Port = host[j+1:]
		host = host[:j]
	}
	ep.Host = host

	if j := strings.IndexByte(ep.Path, '?'); j >= 0 {
		ep.Query = ep.Path[j+1:]
		ep.Path = ep.Path[:j]
	}

	if ep.Host == "" {
		return Endpoint{}, ErrEmptyHost
	}
	return ep, nil
}

// DefaultPort returns the well-known port of the protocol, or "" if unknown.
func (e Endpoint) DefaultPort() string {
	switch e.Protocol {
	case "https":
		return "443"
	case "http":
		return "80"
	case "tcp", "mqtt":
		return "1883"
	case "ssl", "tls", "mqtts":
		return "8883"
	default:
		return ""
	}
}

// HostPort returns host:port, falling back to the default port.
func (e Endpoint) HostPort() (string, error) {
	port := e.Port
	if port == "" {
		port = e.DefaultPort()
	}
	if port == "" {
		return "", fmt.Errorf("endpoint: no port for protocol %q", e.Protocol)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("endpoint: invalid port %q", port)
	}
	return net.JoinHostPort(e.Host, port), nil
}

// URL rebuilds an HTTP(S) request URL. Other protocols are rejected.
func (e Endpoint) URL() (string, error) {
	if e.Protocol != "http" && e.Protocol != "https" {
		return "", fmt.Errorf("endpoint: unsupported protocol %q", e.Protocol)
	}

	hp, err := e.HostPort()
	if err != nil {
		return "", err
	}

	path := e.Path
	if path == "" {
		path = "/"
	}

	u := e.Protocol + "://" + hp + path
	if e.Query != "" {
		u += "?" + e.Query
	}
	return u, nil
}

func (e Endpoint) String() string {
	s := e.Protocol + "://" + e.Host
	if e.Port != "" {
		s += ":" + e.Port
	}
	s += e.Path
	if e.Query != "" {
		s += "?" + e.Query
	}
	return s
}
