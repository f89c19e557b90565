package scoring

import (
	"math"

	"github.com/scentmatch/scentmatch/internal/database"
)

// noteWeight is the fixed award per preferred note found in the other
// side's scent notes.
const noteWeight = 10

// neutralScore is returned when neither side has preferences recorded.
const neutralScore = 50

// Score computes the compatibility percentage between two scent profiles
// and the per-direction breakdown explaining it. The function is pure and
// deterministic: identical inputs always produce identical output, and it
// is safe to call concurrently.
func Score(a, b *database.ScentProfile) (int, database.ScoreBreakdown) {
	breakdown := database.ScoreBreakdown{
		MatchedForUser1: []string{},
		MatchedForUser2: []string{},
	}

	bNotes := toSet(b.ScentNotes)
	for _, note := range a.PreferredNotes {
		breakdown.Possible += noteWeight
		if bNotes[note] {
			breakdown.Awarded += noteWeight
			breakdown.MatchedForUser1 = append(breakdown.MatchedForUser1, note)
		}
	}

	aNotes := toSet(a.ScentNotes)
	for _, note := range b.PreferredNotes {
		breakdown.Possible += noteWeight
		if aNotes[note] {
			breakdown.Awarded += noteWeight
			breakdown.MatchedForUser2 = append(breakdown.MatchedForUser2, note)
		}
	}

	if breakdown.Possible == 0 {
		return neutralScore, breakdown
	}

	score := int(math.Round(float64(breakdown.Awarded) / float64(breakdown.Possible) * 100))
	return score, breakdown
}

func toSet(notes database.StringList) map[string]bool {
	set := make(map[string]bool, len(notes))
	for _, n := range notes {
		set[n] = true
	}
	return set
}
