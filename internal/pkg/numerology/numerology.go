// Package numerology derives the arcana profile of a person from their name and
// birth date. Everything here is pure: same inputs, same profile.
package numerology

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// ArcanaCount is the size of the arcana range; every reduced number lies in 1..22.
const ArcanaCount = 22

const (
	minBirthYear = 1900
	maxBirthYear = 2100
)

// Profile is the derived numerology of one person.
type Profile struct {
	LifePath    int `json:"life_path"`
	Expression  int `json:"expression"`
	SoulUrge    int `json:"soul_urge"`
	Personality int `json:"personality"`
	Destiny     int `json:"destiny"`

	// Base arcana the derived numbers are built from.
	DayArcane   int `json:"day_arcane"`
	MonthArcane int `json:"month_arcane"`
	YearArcane  int `json:"year_arcane"`

	// Secondary arcana shown in the full report.
	Karmic        int `json:"karmic"`
	Resonance     int `json:"resonance"`
	Authority     int `json:"authority"`
	EnergyBalance int `json:"energy_balance"`
	Status        int `json:"status"`
}

// Numbers returns the five headline numbers in display order.
func (p Profile) Numbers() []NamedNumber {
	return []NamedNumber{
		{Key: "life_path", Title: "Life Path", Value: p.LifePath},
		{Key: "expression", Title: "Expression", Value: p.Expression},
		{Key: "soul_urge", Title: "Soul Urge", Value: p.SoulUrge},
		{Key: "personality", Title: "Personality", Value: p.Personality},
		{Key: "destiny", Title: "Destiny", Value: p.Destiny},
	}
}

// Arcana returns the secondary arcana, or nil for profiles stored before they existed.
func (p Profile) Arcana() []NamedNumber {
	if p.Status == 0 {
		return nil
	}
	return []NamedNumber{
		{Key: "karmic", Title: "Karmic", Value: p.Karmic},
		{Key: "resonance", Title: "Resonance", Value: p.Resonance},
		{Key: "authority", Title: "Authority", Value: p.Authority},
		{Key: "energy_balance", Title: "Energy Balance", Value: p.EnergyBalance},
		{Key: "status", Title: "Status", Value: p.Status},
	}
}

// NamedNumber is a labelled profile value.
type NamedNumber struct {
	Key   string
	Title string
	Value int
}

// Reduce folds n into 1..22 by repeatedly subtracting 22. Zero maps to 22.
func Reduce(n int) int {
	if n < 0 {
		n = -n
	}
	for n > ArcanaCount {
		n -= ArcanaCount
	}
	if n == 0 {
		return ArcanaCount
	}
	return n
}

// ParseBirthdate accepts YYYY-MM-DD and DD.MM.YYYY.
func ParseBirthdate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("birthdate", "empty")
	}
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		t, err = time.Parse(layout, raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, invalid("birthdate", "expected YYYY-MM-DD or DD.MM.YYYY")
	}
	if t.Year() < minBirthYear || t.Year() > maxBirthYear {
		return time.Time{}, invalid("birthdate", "year out of range")
	}
	return t, nil
}

// Compute derives the profile for name and birthdate. Only the first two words
// of the name count, and each distinct letter counts once.
func Compute(name string, birthdate time.Time) (Profile, error) {
	if birthdate.IsZero() {
		return Profile{}, invalid("birthdate", "missing")
	}
	if y := birthdate.Year(); y < minBirthYear || y > maxBirthYear {
		return Profile{}, invalid("birthdate", "year out of range")
	}
	master, err := nameNumber(name)
	if err != nil {
		return Profile{}, err
	}

	d := Reduce(birthdate.Day())
	m := int(birthdate.Month())
	y := Reduce(digitSum(birthdate.Year()))

	p := Profile{
		LifePath:    Reduce(d + m + y),
		Expression:  master,
		SoulUrge:    Reduce(d + 2*m + y),
		Personality: Reduce(4*d + 3*m + 3*y),
		Destiny:     Reduce(master + d + m),
		DayArcane:   d,
		MonthArcane: m,
		YearArcane:  y,

		Karmic:        difference(d, y),
		Resonance:     Reduce(6*d + 6*m + 5*y),
		Authority:     difference(d, m),
		EnergyBalance: difference(m, y),
	}
	p.Status = status(p)
	return p, nil
}

// difference is a-b wrapped into 1..22.
func difference(a, b int) int {
	v := a - b
	if v <= 0 {
		v += ArcanaCount
	}
	return Reduce(v)
}

// status compares the average percent of the expression and personality arcana
// with that of destiny and karmic, and returns the arcane whose percent lies
// closest to the absolute gap. Ties go to the lower arcane.
func status(p Profile) int {
	x := (Percent(p.Expression) + Percent(p.Personality)) / 2
	y := (Percent(p.Destiny) + Percent(p.Karmic)) / 2
	gap := math.Abs(x - y)

	best, bestDiff := 1, math.Inf(1)
	for a := 1; a <= ArcanaCount; a++ {
		if diff := math.Abs(Percent(a) - gap); diff < bestDiff {
			best, bestDiff = a, diff
		}
	}
	return best
}

// PersonalYear is the arcane governing calendar year for someone born on birthdate.
func PersonalYear(birthdate time.Time, year int) int {
	return Reduce(birthdate.Day() + int(birthdate.Month()) + year)
}

func nameNumber(name string) (int, error) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return 0, invalid("name", "empty")
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}

	seen := map[rune]bool{}
	total := 0
	letters := 0
	for _, r := range strings.ToLower(strings.Join(parts, "")) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if seen[r] {
			continue
		}
		seen[r] = true
		total += letterValue(r)
	}
	if letters == 0 {
		return 0, invalid("name", "contains no letters")
	}
	return Reduce(total), nil
}

func digitSum(n int) int {
	sum := 0
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}
