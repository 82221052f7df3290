package email

import "net"

// TLSMode selects how the IMAP connection is secured.
type TLSMode string

const (
	TLSImplicit TLSMode = "tls"
	TLSStartTLS TLSMode = "starttls"
	TLSNone     TLSMode = "insecure"
)

// Valid reports whether m is a known TLS mode.
func (m TLSMode) Valid() bool {
	switch m {
	case TLSImplicit, TLSStartTLS, TLSNone:
		return true
	}
	return false
}

// Config holds the IMAP server settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      TLSMode
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
