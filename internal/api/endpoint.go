package api

import (
	"fmt"
	"strconv"
)

const (
	DefaultHost       = "api.jscrambler.com"
	DefaultPort       = 80
	DefaultAPIVersion = 4
)

// Endpoint locates the service.
type Endpoint struct {
	Host       string
	Port       int
	APIVersion int
}

// DefaultEndpoint returns the public service endpoint.
func DefaultEndpoint() Endpoint {
	return Endpoint{Host: DefaultHost, Port: DefaultPort, APIVersion: DefaultAPIVersion}
}

// WithDefaults fills zero fields with the public endpoint values.
func (e Endpoint) WithDefaults() Endpoint {
	if e.Host == "" {
		e.Host = DefaultHost
	}
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	if e.APIVersion == 0 {
		e.APIVersion = DefaultAPIVersion
	}
	return e
}

// Scheme is https for port 443 and http otherwise.
func (e Endpoint) Scheme() string {
	if e.Port == 443 {
		return "https"
	}
	return "http"
}

// HostPort returns the host, with the port appended unless it is 80.
func (e Endpoint) HostPort() string {
	if e.Port == 80 || e.Port == 0 {
		return e.Host
	}
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// BaseURL returns the versioned API root, e.g. "http://api.jscrambler.com/v4".
func (e Endpoint) BaseURL() string {
	return fmt.Sprintf("%s://%s/v%d", e.Scheme(), e.HostPort(), e.APIVersion)
}
