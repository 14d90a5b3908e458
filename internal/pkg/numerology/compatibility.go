package numerology

import "math"

// Compatibility weights: life path dominates, physical matters least.
const (
	weightLifePath     = 0.4
	weightEmotional    = 0.3
	weightIntellectual = 0.2
	weightPhysical     = 0.1

	challengeGap = 5
)

// Challenge labels.
const (
	ChallengeLifePaths = "different life paths"
	ChallengeEmotional = "different emotional needs"
	ChallengeEnergy    = "opposite energy types (yin/yang)"
)

// CompatibilityScore compares two profiles. Component scores are on a 0..10 scale.
type CompatibilityScore struct {
	LifePath     float64  `json:"life_path"`
	Emotional    float64  `json:"emotional"`
	Intellectual float64  `json:"intellectual"`
	Physical     float64  `json:"physical"`
	Total        float64  `json:"total"`
	Karmic       bool     `json:"karmic"`
	Challenges   []string `json:"challenges"`
}

// Compatibility scores a pair of profiles. It is symmetric in its arguments.
func Compatibility(a, b Profile) CompatibilityScore {
	s := CompatibilityScore{
		LifePath:     closeness(a.LifePath, b.LifePath),
		Emotional:    closeness(a.SoulUrge, b.SoulUrge),
		Intellectual: closeness(a.Expression, b.Expression),
		Physical:     closeness(a.Personality, b.Personality),
		Karmic:       a.LifePath == b.LifePath || a.Expression == b.Expression,
		Challenges:   []string{},
	}
	s.Total = round1(s.LifePath*weightLifePath + s.Emotional*weightEmotional +
		s.Intellectual*weightIntellectual + s.Physical*weightPhysical)

	if absInt(a.LifePath-b.LifePath) > challengeGap {
		s.Challenges = append(s.Challenges, ChallengeLifePaths)
	}
	if absInt(a.SoulUrge-b.SoulUrge) > challengeGap {
		s.Challenges = append(s.Challenges, ChallengeEmotional)
	}
	if EnergyOf(a.Expression) != EnergyOf(b.Expression) {
		s.Challenges = append(s.Challenges, ChallengeEnergy)
	}
	return s
}

// TotalPercent is Total on a 0..100 scale.
func (s CompatibilityScore) TotalPercent() float64 {
	return round1(s.Total * 10)
}

func closeness(x, y int) float64 {
	return math.Min(10, 10-0.5*float64(absInt(x-y)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
