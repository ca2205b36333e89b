package domain

import (
	"net"
	"strconv"
)

// AnyHost is the unspecified IPv4 address used when no accept host is configured.
const AnyHost = "0.0.0.0"

// MaxPort is the highest valid TCP port.
const MaxPort = 65535

// ListeningAddress is a (host, port) endpoint the acceptor binds to.
//
// ListeningAddress is comparable, so two values built from the same host
// and port are equal and index the same TemplateTable entry.
type ListeningAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NewListeningAddress validates port and defaults an empty host to AnyHost.
func NewListeningAddress(host string, port int) (ListeningAddress, error) {
	if port < 0 || port > MaxPort {
		return ListeningAddress{}, ErrFieldConversion.WithDetailsf("port %d out of range 0-%d", port, MaxPort)
	}
	if host == "" {
		host = AnyHost
	}
	return ListeningAddress{Host: host, Port: port}, nil
}

// String returns the address in host:port form suitable for net.Listen.
func (a ListeningAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
