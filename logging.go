package rfb

import "github.com/sirupsen/logrus"

// defaultLogger is used by any Server that isn't given one via
// WithLogger. It logs at Info by default, matching logrus's own
// zero-value behavior.
var defaultLogger = logrus.StandardLogger()

// serverLogger returns the base entry a Server logs through, tagged
// with the component so multi-library processes can filter on it.
func serverLogger(l *logrus.Logger) *logrus.Entry {
	if l == nil {
		l = defaultLogger
	}
	return l.WithField("component", "rfbserver")
}

// connLogger derives a per-connection entry carrying the connection's
// id and remote address. Every log line for the lifetime of a
// connection goes through this entry so the two can be correlated.
func connLogger(base *logrus.Entry, id, remoteAddr string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"conn_id":     id,
		"remote_addr": remoteAddr,
	})
}
