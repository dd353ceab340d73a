package scheduler

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type rejection int

const (
	rejectDayUsed rejection = iota
	rejectNotConsecutive
	rejectClassroomOccupied
	rejectInstructorUnavailable
	rejectInstructorBusy
	rejectNoRoom
	rejectionCount
)

var rejectionMessages = [rejectionCount]string{
	rejectDayUsed:               "no free day left for another block",
	rejectNotConsecutive:        "no run of consecutive periods long enough",
	rejectClassroomOccupied:     "classroom occupied in every remaining slot",
	rejectInstructorUnavailable: "instructor hard-unavailable in every remaining slot",
	rejectInstructorBusy:        "instructor already teaching in every remaining slot",
	rejectNoRoom:                "no free room of the required type",
}

// rejections counts why candidates were refused, to explain a failed course.
type rejections [rejectionCount]int

func (r rejections) reason(d *courseDemand, size int) string {
	best := -1
	for i := rejectNotConsecutive; i < rejectionCount; i++ {
		if r[i] > 0 && (best < 0 || r[i] > r[best]) {
			best = int(i)
		}
	}
	if best < 0 {
		best = int(rejectDayUsed)
	}
	return fmt.Sprintf("cannot place a block of %d of %d periods: %s", size, d.needed, rejectionMessages[best])
}

// candidates lists every legal block of the given size, in day then period order.
func (s *scheduleState) candidates(d *courseDemand, size int, w models.QualityWeights, why *rejections) []block {
	var out []block
	for _, day := range s.ix.days {
		if d.usedDays[day] || s.hasDay(d.course.ID, day) {
			if why != nil {
				why[rejectDayUsed]++
			}
			continue
		}
		for start := 0; start+size <= len(s.ix.periods); start++ {
			slots, ok := s.ix.slotsFrom(day, start, size)
			if !ok {
				if why != nil {
					why[rejectNotConsecutive]++
				}
				continue
			}
			if r, legal := s.legal(d, slots); !legal {
				if why != nil {
					why[r]++
				}
				continue
			}
			roomID, ok := s.chooseRoom(d, slots)
			if !ok {
				if why != nil {
					why[rejectNoRoom]++
				}
				continue
			}
			b := block{day: day, start: start, slots: slots, roomID: roomID}
			b.score = s.score(d, b, w)
			out = append(out, b)
		}
	}
	return out
}

// best returns the highest scoring legal block. Ties keep the earliest day, then the
// earliest period, which candidates already yields in order.
func (s *scheduleState) best(d *courseDemand, size int, w models.QualityWeights, why *rejections) (block, bool) {
	var (
		chosen block
		found  bool
	)
	for _, b := range s.candidates(d, size, w, why) {
		if !found || b.score > chosen.score+1e-9 {
			chosen = b
			found = true
		}
	}
	return chosen, found
}

func (s *scheduleState) legal(d *courseDemand, slots []models.TimeSlot) (rejection, bool) {
	for _, slot := range slots {
		if !s.classroomFree(d.course.ClassroomID, slot) {
			return rejectClassroomOccupied, false
		}
		for _, instructorID := range d.course.InstructorIDs {
			if s.ix.instructorBlocked(instructorID, slot) {
				return rejectInstructorUnavailable, false
			}
			if !s.instructorFree(instructorID, slot) {
				return rejectInstructorBusy, false
			}
		}
	}
	return 0, true
}

// chooseRoom picks the instructor's assigned room when compatible and free, otherwise the
// lowest-id free room of the required type. Courses without a room type use the home room.
func (s *scheduleState) chooseRoom(d *courseDemand, slots []models.TimeSlot) (string, bool) {
	required := d.course.RequiredRoomType
	for _, instructorID := range d.course.InstructorIDs {
		assigned := s.ix.instructors[instructorID].AssignedRoomID
		if assigned == nil {
			continue
		}
		room, known := s.ix.roomByID[*assigned]
		if !known || (required != "" && room.RoomType != required) {
			continue
		}
		if s.roomFreeAll(room.ID, slots) {
			return room.ID, true
		}
	}
	if required == "" {
		return "", true
	}
	for _, room := range s.ix.rooms {
		if room.RoomType == required && s.roomFreeAll(room.ID, slots) {
			return room.ID, true
		}
	}
	return "", false
}

func (s *scheduleState) roomFreeAll(roomID string, slots []models.TimeSlot) bool {
	for _, slot := range slots {
		if !s.roomFree(roomID, slot) {
			return false
		}
	}
	return true
}

// score rates a candidate block on the soft constraints. Higher is better.
func (s *scheduleState) score(d *courseDemand, b block, w models.QualityWeights) float64 {
	course := d.course
	total := 0.0
	for _, slot := range b.slots {
		total += w.TimeOfDay * s.ix.timeOfDayMatch(course.PreferredTimeOfDay, slot.PeriodID)
		total += w.PreferredSlot * s.ix.preferredSlotMatch(course.InstructorIDs, slot)
	}
	total += w.PreferredDays * float64(len(b.slots)) * s.ix.preferredDayMatch(course.InstructorIDs, b.day)
	for _, instructorID := range course.InstructorIDs {
		if s.ix.instructors[instructorID].AvoidDays.Contains(b.day) {
			total -= w.AvoidDayPenalty * float64(len(b.slots))
		}
		total -= w.OverloadPenalty * 10 * float64(s.load(instructorID).Excess(b.day, len(b.slots)))
	}
	// Spread the classroom's week: lightly prefer days that are still empty.
	total -= 0.5 * float64(s.classroomDay[course.ClassroomID][b.day])
	return total
}

// timeOfDayMatch is 1 when the period suits the preference, 0 otherwise.
func (ix *index) timeOfDayMatch(pref models.TimeOfDay, periodID string) float64 {
	switch pref {
	case models.TimeOfDayMorning:
		if ix.morning[periodID] {
			return 1
		}
		return 0
	case models.TimeOfDayAfternoon:
		if !ix.morning[periodID] {
			return 1
		}
		return 0
	}
	return 1
}

// preferredSlotMatch is the share of instructors with preferences who prefer the slot.
func (ix *index) preferredSlotMatch(instructorIDs []string, slot models.TimeSlot) float64 {
	considered, matched := 0, 0
	for _, instructorID := range instructorIDs {
		prefs := ix.preferred[instructorID]
		if len(prefs) == 0 {
			continue
		}
		considered++
		if _, ok := prefs[slot]; ok {
			matched++
		}
	}
	if considered == 0 {
		return 1
	}
	return float64(matched) / float64(considered)
}

// preferredDayMatch is 1 on a preferred day, 0 on an avoided day, 0.5 on a neutral day.
func (ix *index) preferredDayMatch(instructorIDs []string, day models.Day) float64 {
	considered, total := 0, 0.0
	for _, instructorID := range instructorIDs {
		c := ix.instructors[instructorID]
		if len(c.PreferredDays) == 0 && len(c.AvoidDays) == 0 {
			continue
		}
		considered++
		switch {
		case c.PreferredDays.Contains(day):
			total++
		case c.AvoidDays.Contains(day):
		default:
			total += 0.5
		}
	}
	if considered == 0 {
		return 1
	}
	return total / float64(considered)
}
