// Package policy maps a risk score onto the action the authentication
// layer should take.
package policy

import (
	"fmt"

	"github.com/kmccarthy/riskgate/internal/models"
)

// Engine holds the two decision thresholds. Thresholds are
// configuration, never derived at decision time.
type Engine struct {
	rejectThreshold    float64
	challengeThreshold float64
}

// NewEngine validates and builds an Engine. A configuration where the
// reject threshold does not exceed the challenge threshold is rejected
// here, at startup, rather than producing nonsense decisions later.
func NewEngine(rejectThreshold, challengeThreshold float64) (*Engine, error) {
	if rejectThreshold <= challengeThreshold {
		return nil, fmt.Errorf("reject threshold %.2f must exceed challenge threshold %.2f",
			rejectThreshold, challengeThreshold)
	}
	if rejectThreshold > 1 || challengeThreshold < 0 {
		return nil, fmt.Errorf("thresholds must lie within [0,1], got reject=%.2f challenge=%.2f",
			rejectThreshold, challengeThreshold)
	}
	return &Engine{
		rejectThreshold:    rejectThreshold,
		challengeThreshold: challengeThreshold,
	}, nil
}

// Decide maps a score to an action: above the reject threshold the
// attempt is refused outright, above the challenge threshold a second
// factor is demanded, otherwise the login proceeds.
func (e *Engine) Decide(score float64) models.Action {
	switch {
	case score > e.rejectThreshold:
		return models.ActionReject
	case score > e.challengeThreshold:
		return models.ActionChallenge
	default:
		return models.ActionAllow
	}
}
