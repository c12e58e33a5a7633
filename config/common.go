package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	EnvPrefix = "KOSMONAUT_"

	// Scheme is the URI scheme of backend endpoints.
	Scheme = "wr"
)

// Endpoint is a parsed backend URI: wr://[token@]host[:port]/vhost.
// It is a value type and is never mutated after parsing.
type Endpoint struct {
	Scheme string
	Token  string
	Host   string
	Port   int
	Vhost  string
}

// ParseEndpoint parses and validates a backend URI.
func ParseEndpoint(uri string) (Endpoint, error) {
	if uri == "" {
		return Endpoint{}, fmt.Errorf("endpoint uri cannot be empty")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint uri: %w", err)
	}
	if u.Scheme != Scheme {
		return Endpoint{}, fmt.Errorf("unsupported scheme %q, expected %q", u.Scheme, Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("host cannot be empty in %q", uri)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid port in %q: %w", uri, err)
		}
		if port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
	}

	var token string
	if u.User != nil {
		token = u.User.Username()
	}

	vhost := u.Path
	if vhost == "" || vhost == "/" {
		return Endpoint{}, fmt.Errorf("vhost path cannot be empty in %q", uri)
	}
	// Both end up inside the colon separated identity field
	if strings.ContainsAny(vhost, ":\r\n") || strings.ContainsAny(token, ":\r\n") {
		return Endpoint{}, fmt.Errorf("vhost and token must not contain ':' or line breaks")
	}

	return Endpoint{
		Scheme: u.Scheme,
		Token:  token,
		Host:   host,
		Port:   port,
		Vhost:  vhost,
	}, nil
}

// Address returns the host:port to dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URI renders the endpoint back into its URI form, token included.
func (e Endpoint) URI() string {
	u := url.URL{
		Scheme: e.Scheme,
		Host:   e.Address(),
		Path:   e.Vhost,
	}
	if e.Token != "" {
		u.User = url.User(e.Token)
	}
	return u.String()
}

// String renders the endpoint without its token, for logging.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s%s", e.Scheme, e.Address(), e.Vhost)
}

// ValidateAddress validates that an address is in valid host:port format.
// Returns an error if the address is invalid.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format %q: %w", addr, err)
	}

	if host == "" {
		return fmt.Errorf("host cannot be empty in address %q", addr)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in address %q: %w", addr, err)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d in address %q", port, addr)
	}

	return nil
}
