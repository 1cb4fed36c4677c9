// Package risk computes a continuous risk score for a login attempt by
// comparing its observed features against the global and the
// account-local history distributions.
package risk

import (
	"math"
	"strconv"

	"github.com/kmccarthy/riskgate/internal/models"
)

const (
	// localFloor guards both sides of the likelihood ratio. On the
	// denominator a value never seen for an account would blow the ratio
	// up without bound; on the numerator an unfloored p_G would vanish
	// for globally-novel values as history grows, cancelling the
	// unfamiliarity signal and letting a listed-malicious origin score
	// below a familiar one. With both sides floored, a value novel in
	// both scopes contributes exactly p_A.
	localFloor = 0.01

	// contributionCap bounds a single sub-feature's likelihood ratio so
	// one unfamiliar feature cannot saturate the total score.
	contributionCap = 4.0

	// activityWeight scales the account-activity adjustment. It is applied
	// as a bounded additive nudge in the pre-squash domain; multiplying the
	// raw score by the activity ratio lets that single term dominate the
	// feature evidence.
	activityWeight = 0.1

	activityRatioMin = 0.5
	activityRatioMax = 2.0
)

// Weights distributes scoring influence across the three feature
// groups. The values must sum to 1.
type Weights struct {
	IP  float64
	UA  float64
	RTT float64
}

// Params is the static configuration of the scorer. All tables are
// lookups, not learned models.
type Params struct {
	Weights            Weights
	SmoothingAlpha     float64
	MaliciousASNs      map[string]bool
	MaliciousCountries map[string]bool
	// MinBrowserVersions maps a browser name to the lowest major version
	// considered current; older versions score elevated attacker
	// probability scaled by the version gap.
	MinBrowserVersions map[string]int

	// Logistic squash shape. Steepness defaults to 4.0, midpoint to 0.42.
	// The midpoint must sit below the raw score of an all-novel login
	// from a listed-malicious origin, or such logins never cross the
	// default reject threshold.
	LogisticSteepness float64
	LogisticMidpoint  float64
}

// Sub-feature weights within each group, from the production
// coefficient tables. They sum to 1 within a group.
var (
	ipSubWeights = map[models.FeatureKey]float64{
		models.FeatureIP:      0.6,
		models.FeatureASN:     0.3,
		models.FeatureCountry: 0.1,
	}
	uaSubWeights = map[models.FeatureKey]float64{
		models.FeatureBrowser:        0.538,
		models.FeatureBrowserVersion: 0.268,
		models.FeatureOSVersion:      0.188,
		models.FeatureDeviceClass:    0.006,
	}
	rttSubWeights = map[models.FeatureKey]float64{
		models.FeatureRTT: 1.0,
	}
)

// Scorer is a pure computation; it holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	params Params
}

// NewScorer returns a Scorer for the given parameters.
func NewScorer(params Params) *Scorer {
	if params.SmoothingAlpha <= 0 {
		params.SmoothingAlpha = 1
	}
	if params.LogisticSteepness == 0 {
		params.LogisticSteepness = 4.0
	}
	if params.LogisticMidpoint == 0 {
		params.LogisticMidpoint = 0.42
	}
	return &Scorer{params: params}
}

// Smooth is the Laplace-smoothed frequency (count+α)/(total+2α). A zero
// total yields exactly 0.5, maximal uncertainty. The result is always
// inside (0,1).
func Smooth(count, total int64, alpha float64) float64 {
	if total == 0 {
		return 0.5
	}
	return (float64(count) + alpha) / (float64(total) + 2*alpha)
}

// Score computes the risk of the observed features given the two
// reference histories. The result is in [0,1]; any numeric anomaly
// yields the maximally cautious 1.0 (scoring fails closed, toward
// REJECT). The returned factors carry the per-group contributions for
// explainability.
func (s *Scorer) Score(set models.FeatureSet, global *models.GlobalHistory, account *models.AccountHistory) (float64, []models.FactorScore) {
	if global == nil {
		global = &models.GlobalHistory{}
	}
	if account == nil {
		account = &models.AccountHistory{}
	}
	values := set.Values()

	rIP := s.groupContribution(set, values, ipSubWeights, global, account)
	rUA := s.groupContribution(set, values, uaSubWeights, global, account)
	rRTT := s.groupContribution(set, values, rttSubWeights, global, account)

	raw := s.params.Weights.IP*rIP + s.params.Weights.UA*rUA + s.params.Weights.RTT*rRTT
	adjusted := raw + activityWeight*(s.activityRatio(global, account)-1)

	score := logistic(adjusted, s.params.LogisticSteepness, s.params.LogisticMidpoint)
	if !isFinite(score) {
		return 1.0, nil
	}

	factors := []models.FactorScore{
		{Feature: "ip", Contribution: rIP},
		{Feature: "ua", Contribution: rUA},
		{Feature: "rtt", Contribution: rRTT},
	}
	return score, factors
}

// groupContribution combines the sub-feature likelihood ratios of one
// feature group: r = Σ subWeight * clamp(pG * pA / max(pL, floor)).
func (s *Scorer) groupContribution(set models.FeatureSet, values map[models.FeatureKey]string, subWeights map[models.FeatureKey]float64, global *models.GlobalHistory, account *models.AccountHistory) float64 {
	var r float64
	for key, weight := range subWeights {
		value := values[key]

		pA := s.attackerProbability(key, value, set)
		pG := Smooth(global.Counters.Count(key, value), global.Counters.Total(key), s.params.SmoothingAlpha)
		pL := Smooth(account.Counters.Count(key, value), account.Counters.Total(key), s.params.SmoothingAlpha)

		ratio := (math.Max(pG, localFloor) * pA) / math.Max(pL, localFloor)
		if !isFinite(ratio) {
			ratio = contributionCap
		}
		r += weight * clamp(ratio, 0, contributionCap)
	}
	return r
}

// attackerProbability is the static heuristic p(value|attacker). Values
// with no configured signal are neutral 0.5.
func (s *Scorer) attackerProbability(key models.FeatureKey, value string, set models.FeatureSet) float64 {
	switch key {
	case models.FeatureIP:
		if set.IP.Local() {
			return 0.01
		}
		return 0.5

	case models.FeatureASN:
		switch {
		case value == models.LocalASN:
			return 0.01
		case s.params.MaliciousASNs[value]:
			return 0.9
		case value == models.UnknownValue:
			return 0.5
		default:
			return 0.1
		}

	case models.FeatureCountry:
		switch {
		case value == models.LocalCountry:
			return 0.01
		case s.params.MaliciousCountries[value]:
			return 0.8
		case value == models.UnknownCountry:
			return 0.5
		default:
			return 0.2
		}

	case models.FeatureBrowser:
		switch value {
		case models.UnknownValue:
			return 0.7
		case "Chrome", "Firefox", "Safari", "Edge":
			return 0.1
		default:
			return 0.5
		}

	case models.FeatureBrowserVersion:
		return s.browserVersionRisk(set.UA.BrowserName, value)

	case models.FeatureOSVersion:
		if value == models.UnknownValue {
			return 0.6
		}
		return 0.5

	case models.FeatureDeviceClass:
		switch value {
		case models.DeviceBot:
			return 0.9
		case models.DeviceMobile, models.DeviceTablet:
			return 0.55
		case models.DeviceDesktop:
			return 0.45
		default:
			return 0.5
		}

	case models.FeatureRTT:
		return rttRisk(set.RTTMillis)
	}

	return 0.5
}

// browserVersionRisk elevates risk for browsers below the configured
// minimum major version, scaled by the version gap and capped at 0.9.
func (s *Scorer) browserVersionRisk(browser, version string) float64 {
	min, ok := s.params.MinBrowserVersions[browser]
	if !ok {
		return 0.5
	}
	major, err := strconv.Atoi(version)
	if err != nil {
		return 0.5
	}
	if major >= min {
		return 0.1
	}
	gap := float64(min - major)
	return math.Min(0.9, 0.5+gap*0.05)
}

// rttRisk maps round-trip time onto [0.1, 0.9]: long paths correlate
// with relayed traffic. The curve is a sigmoid over rtt normalized
// against a 1000ms scale, capped at 2000ms.
func rttRisk(rttMillis float64) float64 {
	if !isFinite(rttMillis) {
		return 0.5
	}
	normalized := math.Min(rttMillis, 2000) / 1000
	return 0.1 + 0.8/(1+math.Exp(-5*(normalized-0.5)))
}

// activityRatio compares a uniform attacker prior over known accounts
// with this account's share of global logins, clamped so the adjustment
// stays a nudge. Cold starts (no accounts yet) read as maximally
// unfamiliar.
func (s *Scorer) activityRatio(global *models.GlobalHistory, account *models.AccountHistory) float64 {
	pAttacker := 1 / math.Max(float64(global.Accounts), 1)
	pLegit := localFloor
	if global.LoginCount > 0 && account.LoginCount > 0 {
		pLegit = math.Max(float64(account.LoginCount)/float64(global.LoginCount), localFloor)
	}
	return clamp(pAttacker/pLegit, activityRatioMin, activityRatioMax)
}

func logistic(x, steepness, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(x-midpoint)))
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
