// Package geo resolves an IP address to the network-origin signals the
// scorer consumes: the owning ASN and the country code. The scoring core
// never performs lookups itself; it consumes this interface's output.
package geo

import (
	"net/netip"

	"github.com/kmccarthy/riskgate/internal/models"
)

// Resolver maps an IP address to (asn, countryCode). Implementations
// must be safe for concurrent use.
type Resolver interface {
	Resolve(addr netip.Addr) (asn, countryCode string, err error)
}

// Static is a fixed-table resolver. Its zero value resolves everything
// to the Unknown sentinels, which keeps the service functional when no
// GeoIP databases are configured. Tests use it with seeded tables.
type Static struct {
	ASNs      map[string]string // IP string -> ASN
	Countries map[string]string // IP string -> country code
}

// Resolve returns the table entries for the address, or sentinels.
func (s *Static) Resolve(addr netip.Addr) (string, string, error) {
	asn := models.UnknownValue
	cc := models.UnknownCountry
	key := addr.String()
	if v, ok := s.ASNs[key]; ok {
		asn = v
	}
	if v, ok := s.Countries[key]; ok {
		cc = v
	}
	return asn, cc, nil
}
