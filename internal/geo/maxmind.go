package geo

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"

	"github.com/kmccarthy/riskgate/internal/models"
)

// MaxMind resolves addresses against local GeoLite2 ASN and Country
// database files. Either reader may be absent; the corresponding signal
// then degrades to its sentinel.
type MaxMind struct {
	asn     *geoip2.Reader
	country *geoip2.Reader
}

// OpenMaxMind opens the configured database files. An empty path skips
// that database. Returns an error only for paths that exist but cannot
// be read, so a misconfigured deployment fails at startup, not per login.
func OpenMaxMind(asnPath, countryPath string) (*MaxMind, error) {
	m := &MaxMind{}

	if asnPath != "" {
		r, err := geoip2.Open(asnPath)
		if err != nil {
			return nil, fmt.Errorf("open ASN database %s: %w", asnPath, err)
		}
		m.asn = r
	}

	if countryPath != "" {
		r, err := geoip2.Open(countryPath)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("open country database %s: %w", countryPath, err)
		}
		m.country = r
	}

	return m, nil
}

// Resolve looks the address up in both databases. Lookup misses are not
// errors; they yield the Unknown sentinels.
func (m *MaxMind) Resolve(addr netip.Addr) (string, string, error) {
	ip := net.IP(addr.AsSlice())
	asn := models.UnknownValue
	cc := models.UnknownCountry

	if m.asn != nil {
		rec, err := m.asn.ASN(ip)
		if err == nil && rec.AutonomousSystemNumber != 0 {
			asn = fmt.Sprintf("AS%d", rec.AutonomousSystemNumber)
		}
	}

	if m.country != nil {
		rec, err := m.country.Country(ip)
		if err == nil && rec.Country.IsoCode != "" {
			cc = rec.Country.IsoCode
		}
	}

	return asn, cc, nil
}

// Close releases the underlying database readers.
func (m *MaxMind) Close() {
	if m.asn != nil {
		_ = m.asn.Close()
	}
	if m.country != nil {
		_ = m.country.Close()
	}
}
