package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Scheme selects the transport security of an endpoint.
type Scheme string

const (
	SchemePlain  Scheme = "tcp"
	SchemeSecure Scheme = "ssl"
)

// Default ports per scheme.
const (
	PlainPort  = 1883
	SecurePort = 8883
)

// Endpoint is a resolved broker connection target. Port 0 means the
// scheme's default port.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   int
}

// Secure reports whether the endpoint uses TLS.
func (e Endpoint) Secure() bool { return e.Scheme == SchemeSecure }

// URL renders the endpoint as a broker URL understood by paho.
func (e Endpoint) URL() string {
	port := e.Port
	if port == 0 {
		port = PlainPort
		if e.Secure() {
			port = SecurePort
		}
	}
	return fmt.Sprintf("%s://%s", e.Scheme, net.JoinHostPort(e.Host, strconv.Itoa(port)))
}

func (e Endpoint) String() string { return e.URL() }

// DefaultSecureDomains lists the managed brokers that only accept TLS.
var DefaultSecureDomains = []string{"hivemq.cloud"}

// Resolver maps raw broker locators to endpoints.
type Resolver struct {
	// SecureDomains are matched as substrings of the host.
	SecureDomains []string
}

// NewResolver returns a Resolver for domains, falling back to
// DefaultSecureDomains when none are given.
func NewResolver(domains []string) Resolver {
	if len(domains) == 0 {
		domains = DefaultSecureDomains
	}
	return Resolver{SecureDomains: domains}
}

// Resolve never fails: anything it does not recognise becomes a plain host,
// and a bad host surfaces later as a connection error.
func (r Resolver) Resolve(locator string) Endpoint {
	loc := strings.TrimSpace(locator)
	for _, prefix := range []string{"mqtts://", "ssl://", "tls://", "mqtt://", "tcp://"} {
		if len(loc) >= len(prefix) && strings.EqualFold(loc[:len(prefix)], prefix) {
			loc = loc[len(prefix):]
			break
		}
	}
	loc = strings.TrimSuffix(loc, "/")
	host, port := splitHostPort(loc)
	for _, d := range r.SecureDomains {
		if d != "" && strings.Contains(strings.ToLower(host), strings.ToLower(d)) {
			return Endpoint{Scheme: SchemeSecure, Host: host, Port: SecurePort}
		}
	}
	return Endpoint{Scheme: SchemePlain, Host: host, Port: port}
}

// ResolveEndpoint resolves locator with the default secure domains.
func ResolveEndpoint(locator string) Endpoint {
	return NewResolver(nil).Resolve(locator)
}

func splitHostPort(s string) (string, int) {
	host, p, err := net.SplitHostPort(s)
	if err != nil {
		return s, 0
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return s, 0
	}
	return host, port
}
