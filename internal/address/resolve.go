package address

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	DefaultBootstrapPath = "/ztp/bootstrap"
	RedirectorPath       = "/api/v3/services/arista.redirector.v1.AssignmentService/GetOne"
)

var ErrInvalidAddress = errors.New("invalid controller address")

var defaultPorts = map[string]string{
	"https": "443",
	"http":  "80",
}

// Endpoint is a normalized controller URL. Scheme, Host, Port and Path are
// always populated once returned by Resolve.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	RawQuery string

	explicitPort bool
}

// Resolve normalizes a raw controller address (bare host, host:port or full
// URL) into the bootstrap endpoint for the given mode.
func Resolve(raw string, mode Mode) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}

	// Assignments handed out by the redirector name the enrollment service.
	if mode == ModeCloud {
		raw = strings.ReplaceAll(raw, "apiserver", "www")
	}

	// url.Parse treats "host:port" as scheme "host"; force network-location parsing.
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "//") {
		raw = "//" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, raw, err)
	}

	netloc, path := u.Host, u.Path
	if netloc == "" {
		netloc, path = strings.Trim(path, "/"), ""
	}
	if netloc == "" || strings.Contains(netloc, "/") {
		return Endpoint{}, fmt.Errorf("%w %q: no host", ErrInvalidAddress, raw)
	}

	ep := Endpoint{
		Scheme:   strings.ToLower(u.Scheme),
		Path:     path,
		RawQuery: u.RawQuery,
	}
	ep.Host, ep.Port = splitHostPort(netloc)
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("%w %q: no host", ErrInvalidAddress, raw)
	}

	if ep.Path == "" {
		ep.Path = DefaultBootstrapPath
	}
	if ep.Scheme == "" {
		ep.Scheme = ProfileFor(mode).DefaultScheme
	}

	port, ok := defaultPorts[ep.Scheme]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w %q: unsupported scheme %q", ErrInvalidAddress, raw, ep.Scheme)
	}
	if ep.Port != "" {
		ep.explicitPort = true
	} else {
		ep.Port = port
	}

	return ep, nil
}

func splitHostPort(netloc string) (string, string) {
	host, port, err := net.SplitHostPort(netloc)
	if err != nil {
		return strings.Trim(netloc, "[]"), ""
	}
	return host, port
}

// EnrollAddr returns the host:port the enrollment agent should dial.
func EnrollAddr(ep Endpoint, mode Mode) string {
	host := ep.Host
	if mode == ModeCloud {
		host = strings.ReplaceAll(host, "www", "apiserver")
	}
	return net.JoinHostPort(host, ProfileFor(mode).EnrollPort)
}

// RedirectorURL derives the redirector endpoint from the bootstrap endpoint.
// The second result is false for modes that never consult a redirector.
func RedirectorURL(ep Endpoint, mode Mode) (Endpoint, bool) {
	if !ProfileFor(mode).UsesRedirector {
		return Endpoint{}, false
	}
	ep.Path = RedirectorPath
	ep.RawQuery = ""
	return ep, true
}

func (e Endpoint) hostport() string {
	if e.explicitPort || e.Port != defaultPorts[e.Scheme] {
		return net.JoinHostPort(e.Host, e.Port)
	}
	if strings.Contains(e.Host, ":") {
		return "[" + e.Host + "]"
	}
	return e.Host
}

func (e Endpoint) URL() *url.URL {
	return &url.URL{
		Scheme:   e.Scheme,
		Host:     e.hostport(),
		Path:     e.Path,
		RawQuery: e.RawQuery,
	}
}

func (e Endpoint) String() string {
	return e.URL().String()
}
