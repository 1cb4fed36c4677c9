// Package features turns raw request signals into the normalized
// FeatureSet the scorer and the history counters operate on.
package features

import (
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/kmccarthy/riskgate/internal/geo"
	"github.com/kmccarthy/riskgate/internal/models"
)

// rttBucketMillis is the resolution RTT values are rounded down to
// before counting. Raw millisecond values are near-unique, which would
// make the rtt_bucket counter useless.
const rttBucketMillis = 50

// Extractor normalizes raw login signals. Extraction is a total
// function: every input, however malformed, yields a FeatureSet with
// sentinel values in place of unparsable signals, because a login must
// still be scored with partial signal.
type Extractor struct {
	resolver geo.Resolver
}

// NewExtractor returns an Extractor backed by the given resolver.
func NewExtractor(resolver geo.Resolver) *Extractor {
	return &Extractor{resolver: resolver}
}

// Extract builds the FeatureSet for one login attempt. rttMillis below
// zero, NaN, or infinite is treated as unmeasured and recorded as 0.
func (e *Extractor) Extract(rawIP, rawUserAgent string, rttMillis float64) models.FeatureSet {
	rtt := clampRTT(rttMillis)
	return models.FeatureSet{
		IP:        e.extractIP(rawIP),
		UA:        extractUA(rawUserAgent),
		RTTMillis: rtt,
		RTTBucket: bucketRTT(rtt),
	}
}

func (e *Extractor) extractIP(raw string) models.IPFeature {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return models.IPFeature{
			IP:          models.UnknownValue,
			ASN:         models.UnknownValue,
			CountryCode: models.UnknownCountry,
		}
	}

	// Express-style proxies hand over IPv4 as ::ffff:a.b.c.d.
	addr = addr.Unmap()
	feature := models.IPFeature{IP: addr.String()}

	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		feature.ASN = models.LocalASN
		feature.CountryCode = models.LocalCountry
		return feature
	}

	asn, cc, err := e.resolver.Resolve(addr)
	if err != nil {
		feature.ASN = models.UnknownValue
		feature.CountryCode = models.UnknownCountry
		return feature
	}
	feature.ASN = asn
	feature.CountryCode = cc
	return feature
}

func extractUA(raw string) models.UAFeature {
	feature := models.UAFeature{
		BrowserName:         models.UnknownValue,
		BrowserMajorVersion: models.UnknownVersion,
		OSVersion:           models.UnknownValue,
		DeviceClass:         models.UnknownValue,
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return feature
	}

	ua := useragent.Parse(raw)
	if ua.Name != "" {
		feature.BrowserName = ua.Name
	}
	if major := majorVersion(ua.Version); major != "" {
		feature.BrowserMajorVersion = major
	}
	if ua.OSVersion != "" {
		feature.OSVersion = ua.OSVersion
	}

	switch {
	case ua.Bot:
		feature.DeviceClass = models.DeviceBot
	case ua.Mobile:
		feature.DeviceClass = models.DeviceMobile
	case ua.Tablet:
		feature.DeviceClass = models.DeviceTablet
	case ua.Desktop:
		feature.DeviceClass = models.DeviceDesktop
	}

	return feature
}

// majorVersion keeps only the leading numeric segment of a version
// string, or "" when there is none.
func majorVersion(version string) string {
	segment, _, _ := strings.Cut(version, ".")
	if segment == "" {
		return ""
	}
	if _, err := strconv.Atoi(segment); err != nil {
		return ""
	}
	return segment
}

func clampRTT(rtt float64) float64 {
	if math.IsNaN(rtt) || math.IsInf(rtt, 0) || rtt < 0 {
		return 0
	}
	return rtt
}

func bucketRTT(rtt float64) string {
	bucket := int64(rtt/rttBucketMillis) * rttBucketMillis
	return strconv.FormatInt(bucket, 10)
}
