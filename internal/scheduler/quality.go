package scheduler

import (
	"math"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// quality scores the state from 0 to 100: the weighted share of satisfied preferences
// scaled by completion, minus penalties for unplaced courses and daily overload.
func (s *scheduleState) quality(unplaced int, w models.QualityWeights) float64 {
	needed := 0
	for _, d := range s.ix.demands {
		needed += d.needed
	}
	if needed == 0 {
		return 100
	}

	var (
		tod, pref, days, dist float64
		slots, courses        int
		placed                int
	)
	for _, d := range s.ix.demands {
		blocks := s.placed[d.course.ID]
		if len(blocks) == 0 {
			continue
		}
		courses++
		dayIndexes := make([]int, 0, len(blocks))
		for _, b := range blocks {
			dayIndexes = append(dayIndexes, b.day.Index())
			for _, slot := range b.slots {
				tod += s.ix.timeOfDayMatch(d.course.PreferredTimeOfDay, slot.PeriodID)
				pref += s.ix.preferredSlotMatch(d.course.InstructorIDs, slot)
				days += s.ix.preferredDayMatch(d.course.InstructorIDs, slot.Day)
				slots++
			}
		}
		placed += periodsIn(blocks)
		dist += distributionScore(dayIndexes)
	}

	base := 0.0
	if slots > 0 {
		weightSum := w.TimeOfDay + w.PreferredSlot + w.PreferredDays + w.Distribution
		if weightSum > 0 {
			n := float64(slots)
			base = (w.TimeOfDay*tod/n + w.PreferredSlot*pref/n + w.PreferredDays*days/n +
				w.Distribution*dist/float64(courses)) / weightSum * 100
		}
	}
	completion := float64(placed) / float64(needed)

	score := base*completion - w.UnplacedPenalty*float64(unplaced) - w.OverloadPenalty*float64(s.overload())
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

// overload counts periods above each instructor's daily maximum.
func (s *scheduleState) overload() int {
	total := 0
	for _, l := range s.loads {
		if l.maxPerDay <= 0 {
			continue
		}
		for _, n := range l.perDay {
			if n > l.maxPerDay {
				total += n - l.maxPerDay
			}
		}
	}
	return total
}

// distributionScore rewards spreading a course over non-adjacent days: the longest run of
// consecutive days scores 1 for a single day, then 0.9, 0.7, 0.5 and 0.3 beyond.
func distributionScore(dayIndexes []int) float64 {
	if len(dayIndexes) <= 1 {
		return 1
	}
	sorted := append([]int(nil), dayIndexes...)
	sort.Ints(sorted)
	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	switch longest {
	case 1:
		return 1
	case 2:
		return 0.9
	case 3:
		return 0.7
	case 4:
		return 0.5
	default:
		return 0.3
	}
}

func periodsIn(blocks []block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.slots)
	}
	return n
}
