package rfb

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// protocolVersion38 is the version this server advertises by default;
// it negotiates down to 003.007 or 003.003 if the client asks for less.
const protocolVersion38 = "RFB 003.008\n"

// ServerConfig holds every option enumerated in SPEC_FULL.md §3,
// immutable once NewServer returns. DesktopName is the one field that
// keeps changing at runtime, via Server.ChangeName, which is why it
// also lives on the hub rather than being read back out of this struct.
type ServerConfig struct {
	Host                string
	Port                int
	ProtocolVersionMax  string
	DesktopName         string
	Password            string
	ReadOnlyPassword    string
	MaxClients          int
	EventQueueCapacity  int
	HandshakeTimeout    time.Duration
	AcceptRateLimit     rate.Limit
	AcceptBurst         int
	Logger              *logrus.Logger
}

// Option configures a ServerConfig at construction time.
type Option func(*ServerConfig)

// WithPassword sets the primary VNCAuth password. An empty password
// (the default) means VNCAuth is not offered and only security type
// None is advertised.
func WithPassword(password string) Option {
	return func(c *ServerConfig) { c.Password = password }
}

// WithReadOnlyPassword sets a second VNCAuth password that, when
// matched, marks the connection read-only: its KeyEvent and
// PointerEvent messages are parsed but never enqueued.
func WithReadOnlyPassword(password string) Option {
	return func(c *ServerConfig) { c.ReadOnlyPassword = password }
}

// WithMaxClients caps the number of simultaneously live connections.
// Zero (the default) means unlimited.
func WithMaxClients(n int) Option {
	return func(c *ServerConfig) { c.MaxClients = n }
}

// WithDesktopName sets the initial desktop name sent in ServerInit.
func WithDesktopName(name string) Option {
	return func(c *ServerConfig) { c.DesktopName = name }
}

// WithProtocolVersionMax overrides the advertised protocol version,
// mostly useful for tests exercising the 003.003/003.007 fallback
// paths.
func WithProtocolVersionMax(version string) Option {
	return func(c *ServerConfig) { c.ProtocolVersionMax = version }
}

// WithAcceptRateLimit throttles the accept loop to at most limit new
// connections per second, with burst room for a short spike. This sits
// in front of MaxClients (SPEC_FULL.md §4.7): it smooths a connection
// storm rather than rejecting it outright.
func WithAcceptRateLimit(limit rate.Limit, burst int) Option {
	return func(c *ServerConfig) {
		c.AcceptRateLimit = limit
		c.AcceptBurst = burst
	}
}

// WithLogger directs all server and connection logging through l
// instead of the package default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *ServerConfig) { c.Logger = l }
}

// WithHandshakeTimeout overrides how long a connection may spend
// between accept and a completed ServerInit before it is closed.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *ServerConfig) { c.HandshakeTimeout = d }
}

// WithEventQueueCapacity overrides the bounded event queue's capacity
// (default 256, per SPEC_FULL.md §4.4).
func WithEventQueueCapacity(n int) Option {
	return func(c *ServerConfig) { c.EventQueueCapacity = n }
}

func defaultConfig(host string, port int) ServerConfig {
	return ServerConfig{
		Host:               host,
		Port:               port,
		ProtocolVersionMax: protocolVersion38,
		DesktopName:        "",
		EventQueueCapacity: defaultEventQueueCapacity,
		HandshakeTimeout:   30 * time.Second,
	}
}

// validate enforces ErrConfiguration-worthy constraints synchronously,
// before any goroutine or socket is touched (SPEC_FULL.md §7).
func (c ServerConfig) validate() error {
	switch c.ProtocolVersionMax {
	case "RFB 003.008\n", "RFB 003.007\n", "RFB 003.003\n":
	default:
		return fmt.Errorf("%w: unsupported protocol version %q", ErrConfiguration, c.ProtocolVersionMax)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("%w: MaxClients must not be negative", ErrConfiguration)
	}
	if c.EventQueueCapacity < 0 {
		return fmt.Errorf("%w: EventQueueCapacity must not be negative", ErrConfiguration)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: HandshakeTimeout must not be negative", ErrConfiguration)
	}
	if c.ReadOnlyPassword != "" && c.Password == "" {
		return fmt.Errorf("%w: ReadOnlyPassword requires a primary Password", ErrConfiguration)
	}
	if c.ReadOnlyPassword != "" && c.ReadOnlyPassword == c.Password {
		return fmt.Errorf("%w: ReadOnlyPassword must differ from Password", ErrConfiguration)
	}
	return nil
}

func (c ServerConfig) securityTypes() []securityType {
	if c.Password != "" {
		return []securityType{securityVNCAuth}
	}
	return []securityType{securityNone}
}
