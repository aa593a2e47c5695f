package rfb

import (
	"fmt"
	"regexp"
	"strconv"
)

// protocolVersion is a parsed "RFB %03d.%03d\n" handshake line.
type protocolVersion struct {
	Major, Minor int
}

var versionLine = regexp.MustCompile(`^RFB (\d{3})\.(\d{3})\n$`)

func parseProtocolVersion(s string) (protocolVersion, error) {
	m := versionLine.FindStringSubmatch(s)
	if m == nil {
		return protocolVersion{}, fmt.Errorf("%w: malformed protocol version line %q", ErrProtocol, s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return protocolVersion{Major: major, Minor: minor}, nil
}

func (v protocolVersion) String() string {
	return fmt.Sprintf("RFB %03d.%03d\n", v.Major, v.Minor)
}

// atLeast reports whether v is >= other, comparing major then minor.
func (v protocolVersion) atLeast(other protocolVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// negotiateVersion picks the highest version both sides can speak,
// never exceeding serverMax: "pick max <= advertised" (SPEC_FULL.md
// §4.5). Clients offering something newer than serverMax are brought
// down to serverMax; clients offering something older keep their own
// (older) version, since that's the one the server must now speak.
func negotiateVersion(serverMax, client protocolVersion) protocolVersion {
	if client.atLeast(serverMax) {
		return serverMax
	}
	return client
}
