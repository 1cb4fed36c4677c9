package models

// FeatureKey identifies one observable login signal tracked by the
// history counters. The set is closed: extraction always produces a
// value for every key, falling back to sentinels when a signal cannot
// be parsed.
type FeatureKey string

const (
	FeatureIP             FeatureKey = "ip"
	FeatureASN            FeatureKey = "asn"
	FeatureCountry        FeatureKey = "country_code"
	FeatureBrowser        FeatureKey = "browser_name"
	FeatureBrowserVersion FeatureKey = "browser_major_version"
	FeatureOSVersion      FeatureKey = "os_version"
	FeatureDeviceClass    FeatureKey = "device_class"
	FeatureRTT            FeatureKey = "rtt_bucket"
)

// AllFeatureKeys lists every tracked feature key in a stable order.
var AllFeatureKeys = []FeatureKey{
	FeatureIP,
	FeatureASN,
	FeatureCountry,
	FeatureBrowser,
	FeatureBrowserVersion,
	FeatureOSVersion,
	FeatureDeviceClass,
	FeatureRTT,
}

// Sentinel values used when a signal cannot be resolved. Extraction is a
// total function: unparsable input degrades to these, never to an error.
const (
	UnknownValue   = "Unknown"
	UnknownCountry = "XX"
	UnknownVersion = "0"
	LocalASN       = "Local"
	LocalCountry   = "LOCAL"
)

// Device classes produced by user-agent extraction.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// IPFeature holds the network-origin signals of a login attempt.
type IPFeature struct {
	IP          string `json:"ip"`
	ASN         string `json:"asn"`
	CountryCode string `json:"country_code"`
}

// Local reports whether the address resolved to a loopback or private
// network origin, which is treated as minimal risk.
func (f IPFeature) Local() bool {
	return f.ASN == LocalASN && f.CountryCode == LocalCountry
}

// UAFeature holds the client-software signals of a login attempt.
type UAFeature struct {
	BrowserName         string `json:"browser_name"`
	BrowserMajorVersion string `json:"browser_major_version"`
	OSVersion           string `json:"os_version"`
	DeviceClass         string `json:"device_class"`
}

// FeatureSet is the normalized, per-attempt view of a login's signals.
// It is created and discarded within a single request.
type FeatureSet struct {
	IP        IPFeature `json:"ip"`
	UA        UAFeature `json:"ua"`
	RTTMillis float64   `json:"rtt_millis"`
	RTTBucket string    `json:"rtt_bucket"`
}

// Values flattens the set into one observed value per feature key,
// which is the shape the counters and the scorer operate on.
func (s FeatureSet) Values() map[FeatureKey]string {
	return map[FeatureKey]string{
		FeatureIP:             s.IP.IP,
		FeatureASN:            s.IP.ASN,
		FeatureCountry:        s.IP.CountryCode,
		FeatureBrowser:        s.UA.BrowserName,
		FeatureBrowserVersion: s.UA.BrowserMajorVersion,
		FeatureOSVersion:      s.UA.OSVersion,
		FeatureDeviceClass:    s.UA.DeviceClass,
		FeatureRTT:            s.RTTBucket,
	}
}
