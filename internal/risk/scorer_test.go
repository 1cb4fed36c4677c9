package risk_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmccarthy/riskgate/internal/models"
	"github.com/kmccarthy/riskgate/internal/risk"
)

func testParams() risk.Params {
	return risk.Params{
		Weights:            risk.Weights{IP: 0.5, UA: 0.3, RTT: 0.2},
		SmoothingAlpha:     1.0,
		MaliciousASNs:      map[string]bool{"AS9999": true},
		MaliciousCountries: map[string]bool{"KP": true},
		MinBrowserVersions: map[string]int{"Chrome": 85, "Firefox": 78},
	}
}

func trustedSet() models.FeatureSet {
	return models.FeatureSet{
		IP: models.IPFeature{
			IP:          "127.0.0.1",
			ASN:         models.LocalASN,
			CountryCode: models.LocalCountry,
		},
		UA: models.UAFeature{
			BrowserName:         "Chrome",
			BrowserMajorVersion: "120",
			OSVersion:           "10.0",
			DeviceClass:         models.DeviceDesktop,
		},
		RTTMillis: 50,
		RTTBucket: "50",
	}
}

func hostileSet() models.FeatureSet {
	return models.FeatureSet{
		IP: models.IPFeature{
			IP:          "203.0.113.9",
			ASN:         "AS9999",
			CountryCode: "KP",
		},
		UA: models.UAFeature{
			BrowserName:         models.UnknownValue,
			BrowserMajorVersion: models.UnknownVersion,
			OSVersion:           models.UnknownValue,
			DeviceClass:         models.UnknownValue,
		},
		RTTMillis: 900,
		RTTBucket: "900",
	}
}

func TestSmooth_Bounds(t *testing.T) {
	cases := []struct {
		count, total int64
	}{
		{0, 1}, {1, 1}, {0, 1000}, {1000, 1000}, {37, 500},
	}
	for _, c := range cases {
		got := risk.Smooth(c.count, c.total, 1.0)
		assert.Greater(t, got, 0.0, "Smooth(%d,%d)", c.count, c.total)
		assert.Less(t, got, 1.0, "Smooth(%d,%d)", c.count, c.total)
	}
}

func TestSmooth_ZeroTotalIsMaximalUncertainty(t *testing.T) {
	assert.Equal(t, 0.5, risk.Smooth(0, 0, 1.0))
	assert.Equal(t, 0.5, risk.Smooth(0, 0, 0.1))
}

func TestSmooth_MonotonicInCount(t *testing.T) {
	prev := 0.0
	for count := int64(0); count <= 100; count += 10 {
		got := risk.Smooth(count, 100, 1.0)
		assert.Greater(t, got, prev, "count=%d", count)
		prev = got
	}
}

func TestScore_ColdStartTrustedStaysLow(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	score, factors := scorer.Score(trustedSet(), models.NewGlobalHistory(), models.NewAccountHistory("alice"))

	assert.Less(t, score, 0.4, "fresh deploy must not challenge a local login")
	require.Len(t, factors, 3)
	assert.Equal(t, "ip", factors[0].Feature)
}

func TestScore_ColdStartHostileIsHigh(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	score, _ := scorer.Score(hostileSet(), models.NewGlobalHistory(), models.NewAccountHistory("mallory"))

	assert.Greater(t, score, 0.7)
}

func TestScore_AlwaysInUnitInterval(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	for _, set := range []models.FeatureSet{trustedSet(), hostileSet(), {}} {
		score, _ := scorer.Score(set, models.NewGlobalHistory(), models.NewAccountHistory("a"))
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScore_FamiliarHistoryLowersScore(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	set := trustedSet()

	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")

	coldScore, _ := scorer.Score(set, global, account)

	for i := 0; i < 20; i++ {
		account.Observe(set)
		global.Observe(set, i == 0)
	}

	warmScore, _ := scorer.Score(set, global, account)

	assert.Less(t, warmScore, coldScore, "a repeatedly seen fingerprint must score lower")
}

func TestScore_MoreObservationsScoreLower(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	set := trustedSet()

	// Fixed global population of 100 logins over 10 accounts; only the
	// account-local familiarity varies.
	scoreAfter := func(n int) float64 {
		global := models.NewGlobalHistory()
		for i := 0; i < 100; i++ {
			global.Observe(set, i < 10)
		}
		account := models.NewAccountHistory("alice")
		for i := 0; i < n; i++ {
			account.Observe(set)
		}
		score, _ := scorer.Score(set, global, account)
		return score
	}

	assert.Less(t, scoreAfter(50), scoreAfter(5))
}

func establishedSet() models.FeatureSet {
	return models.FeatureSet{
		IP: models.IPFeature{
			IP:          "198.51.100.7",
			ASN:         "AS1111",
			CountryCode: "US",
		},
		UA: models.UAFeature{
			BrowserName:         "Chrome",
			BrowserMajorVersion: "120",
			OSVersion:           "10.0",
			DeviceClass:         models.DeviceDesktop,
		},
		RTTMillis: 50,
		RTTBucket: "50",
	}
}

func TestScore_HostileLoginAfterEstablishedHistoryIsHigh(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	// 100 prior logins, all from the same ASN, country and browser.
	usual := establishedSet()
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")
	for i := 0; i < 100; i++ {
		global.Observe(usual, i == 0)
		account.Observe(usual)
	}

	score, _ := scorer.Score(hostileSet(), global, account)

	assert.Greater(t, score, 0.7,
		"listed-malicious origin with an unrecognized browser must cross the reject line")
}

func TestScore_HostileOutscoresFamiliarUnderLargeGlobalHistory(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	// A large global population must not drown out the unfamiliarity of
	// a globally-novel fingerprint.
	usual := establishedSet()
	global := models.NewGlobalHistory()
	for i := 0; i < 10000; i++ {
		global.Observe(usual, i < 100)
	}
	account := models.NewAccountHistory("alice")
	for i := 0; i < 100; i++ {
		account.Observe(usual)
	}

	familiarScore, _ := scorer.Score(usual, global, account)
	hostileScore, _ := scorer.Score(hostileSet(), global, account)

	assert.Greater(t, hostileScore, familiarScore)
	assert.Greater(t, hostileScore, 0.7)
}

func TestScore_MaliciousCountryOutscoresUnlisted(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")

	listed := hostileSet()
	listed.IP.CountryCode = "KP"

	unlisted := hostileSet()
	unlisted.IP.CountryCode = "FR"

	listedScore, _ := scorer.Score(listed, global, account)
	unlistedScore, _ := scorer.Score(unlisted, global, account)

	assert.Greater(t, listedScore, unlistedScore)
}

func TestScore_MaliciousASNOutscoresUnlisted(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")

	listed := hostileSet()
	listed.IP.ASN = "AS9999"

	unlisted := hostileSet()
	unlisted.IP.ASN = "AS64500"

	listedScore, _ := scorer.Score(listed, global, account)
	unlistedScore, _ := scorer.Score(unlisted, global, account)

	assert.Greater(t, listedScore, unlistedScore)
}

func TestScore_OutdatedBrowserOutscoresCurrent(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")

	current := trustedSet()
	outdated := trustedSet()
	outdated.UA.BrowserMajorVersion = "60"

	currentScore, _ := scorer.Score(current, global, account)
	outdatedScore, _ := scorer.Score(outdated, global, account)

	assert.Greater(t, outdatedScore, currentScore)
}

func TestScore_LongRTTOutscoresShort(t *testing.T) {
	scorer := risk.NewScorer(testParams())
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")

	near := trustedSet()
	near.RTTMillis = 20
	near.RTTBucket = "0"

	far := trustedSet()
	far.RTTMillis = 1800
	far.RTTBucket = "1800"

	nearScore, _ := scorer.Score(near, global, account)
	farScore, _ := scorer.Score(far, global, account)

	assert.Greater(t, farScore, nearScore)
}

func TestScore_ContributionsAreCapped(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	// Heavy global evidence for a value the account has never produced
	// would blow the likelihood ratio up without the cap.
	set := hostileSet()
	global := models.NewGlobalHistory()
	account := models.NewAccountHistory("alice")
	for i := 0; i < 1000; i++ {
		global.Observe(set, false)
		account.Observe(trustedSet())
	}

	_, factors := scorer.Score(set, global, account)
	require.Len(t, factors, 3)
	for _, f := range factors {
		assert.LessOrEqual(t, f.Contribution, 4.0, "factor %s", f.Feature)
		assert.GreaterOrEqual(t, f.Contribution, 0.0, "factor %s", f.Feature)
	}
}

func TestScore_NumericAnomalyFailsClosed(t *testing.T) {
	params := testParams()
	params.Weights.IP = math.NaN()
	scorer := risk.NewScorer(params)

	score, factors := scorer.Score(trustedSet(), models.NewGlobalHistory(), models.NewAccountHistory("alice"))

	assert.Equal(t, 1.0, score)
	assert.Nil(t, factors)
}

func TestScore_NilHistoriesTreatedAsColdStart(t *testing.T) {
	scorer := risk.NewScorer(testParams())

	withNil, _ := scorer.Score(trustedSet(), nil, nil)
	withZero, _ := scorer.Score(trustedSet(), models.NewGlobalHistory(), models.NewAccountHistory("alice"))

	assert.InDelta(t, withZero, withNil, 1e-12)
}
