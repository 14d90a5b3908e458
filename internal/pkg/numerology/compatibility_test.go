package numerology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatibilityIdenticalProfiles(t *testing.T) {
	p := Profile{LifePath: 16, Expression: 18, SoulUrge: 21, Personality: 18, Destiny: 15}
	s := Compatibility(p, p)

	assert.Equal(t, 10.0, s.Total)
	assert.Equal(t, 100.0, s.TotalPercent())
	assert.True(t, s.Karmic)
	assert.Empty(t, s.Challenges)
}

func TestCompatibilityScoresAndChallenges(t *testing.T) {
	a := Profile{LifePath: 2, Expression: 4, SoulUrge: 3, Personality: 10}
	b := Profile{LifePath: 12, Expression: 6, SoulUrge: 5, Personality: 12}

	s := Compatibility(a, b)
	assert.Equal(t, 5.0, s.LifePath)
	assert.Equal(t, 9.0, s.Emotional)
	assert.Equal(t, 9.0, s.Intellectual)
	assert.Equal(t, 9.0, s.Physical)
	// 5*0.4 + 9*0.3 + 9*0.2 + 9*0.1 = 7.4
	assert.Equal(t, 7.4, s.Total)
	assert.False(t, s.Karmic)
	// 4 is yang, 6 is yin
	assert.Equal(t, []string{ChallengeLifePaths, ChallengeEnergy}, s.Challenges)
}

func TestCompatibilityIsSymmetric(t *testing.T) {
	a := Profile{LifePath: 1, Expression: 22, SoulUrge: 7, Personality: 3}
	b := Profile{LifePath: 20, Expression: 2, SoulUrge: 19, Personality: 15}
	assert.Equal(t, Compatibility(a, b), Compatibility(b, a))
}
