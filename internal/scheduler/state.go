package scheduler

import (
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type occKey struct {
	id   string
	slot models.TimeSlot
}

// occupancy maps a (resource, slot) pair to the course holding it, or fixedOwner.
type occupancy map[occKey]string

func (o occupancy) clone() occupancy {
	out := make(occupancy, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// block is one run of consecutive periods of a course on a single day.
type block struct {
	day    models.Day
	start  int
	slots  []models.TimeSlot
	roomID string
	score  float64
}

// instructorLoad tracks how many periods an instructor teaches per day.
type instructorLoad struct {
	maxPerDay int
	perDay    map[models.Day]int
}

func newInstructorLoad(maxPerDay int) *instructorLoad {
	return &instructorLoad{maxPerDay: maxPerDay, perDay: make(map[models.Day]int)}
}

func (l *instructorLoad) Reserve(day models.Day, n int) {
	l.perDay[day] += n
}

func (l *instructorLoad) Release(day models.Day, n int) {
	l.perDay[day] -= n
	if l.perDay[day] <= 0 {
		delete(l.perDay, day)
	}
}

// Excess returns how far adding n periods on day would exceed the daily maximum.
func (l *instructorLoad) Excess(day models.Day, n int) int {
	if l.maxPerDay <= 0 {
		return 0
	}
	over := l.perDay[day] + n - l.maxPerDay
	if over < 0 {
		return 0
	}
	return over
}

func (l *instructorLoad) clone() *instructorLoad {
	out := newInstructorLoad(l.maxPerDay)
	for day, n := range l.perDay {
		out.perDay[day] = n
	}
	return out
}

// scheduleState is the mutable grid of a run.
type scheduleState struct {
	ix           *index
	classrooms   occupancy
	instructors  occupancy
	rooms        occupancy
	loads        map[string]*instructorLoad
	classroomDay map[string]map[models.Day]int
	placed       map[string][]block
	seq          map[string]int
	nextSeq      int
}

func newScheduleState(ix *index) *scheduleState {
	s := &scheduleState{
		ix:           ix,
		classrooms:   make(occupancy),
		instructors:  make(occupancy),
		rooms:        make(occupancy),
		loads:        make(map[string]*instructorLoad),
		classroomDay: make(map[string]map[models.Day]int),
		placed:       make(map[string][]block),
		seq:          make(map[string]int),
	}

	for _, lock := range ix.locks {
		slots := lock.Slots()
		for classroomID, grade := range ix.classrooms {
			if !lock.AppliesTo(classroomID, grade) {
				continue
			}
			for _, slot := range slots {
				s.classrooms[occKey{classroomID, slot}] = fixedOwner
			}
			s.bumpClassroomDay(classroomID, lock.Day, len(slots))
		}
		if lock.InstructorID != nil {
			for _, slot := range slots {
				s.instructors[occKey{*lock.InstructorID, slot}] = fixedOwner
			}
			s.load(*lock.InstructorID).Reserve(lock.Day, len(slots))
		}
		if lock.RoomID != nil {
			for _, slot := range slots {
				s.rooms[occKey{*lock.RoomID, slot}] = fixedOwner
			}
		}
	}

	for _, entry := range ix.existing {
		slot := entry.Slot()
		s.classrooms[occKey{entry.ClassroomID, slot}] = fixedOwner
		s.bumpClassroomDay(entry.ClassroomID, entry.Day, 1)
		for _, instructorID := range entry.InstructorIDs {
			s.instructors[occKey{instructorID, slot}] = fixedOwner
			s.load(instructorID).Reserve(entry.Day, 1)
		}
		if entry.RoomID != nil {
			s.rooms[occKey{*entry.RoomID, slot}] = fixedOwner
		}
	}
	return s
}

func (s *scheduleState) load(instructorID string) *instructorLoad {
	l, ok := s.loads[instructorID]
	if !ok {
		l = newInstructorLoad(s.ix.instructors[instructorID].MaxPeriodsPerDay)
		s.loads[instructorID] = l
	}
	return l
}

func (s *scheduleState) bumpClassroomDay(classroomID string, day models.Day, n int) {
	days, ok := s.classroomDay[classroomID]
	if !ok {
		days = make(map[models.Day]int)
		s.classroomDay[classroomID] = days
	}
	days[day] += n
}

func (s *scheduleState) classroomFree(classroomID string, slot models.TimeSlot) bool {
	_, taken := s.classrooms[occKey{classroomID, slot}]
	return !taken
}

func (s *scheduleState) instructorFree(instructorID string, slot models.TimeSlot) bool {
	_, taken := s.instructors[occKey{instructorID, slot}]
	return !taken
}

func (s *scheduleState) roomFree(roomID string, slot models.TimeSlot) bool {
	_, taken := s.rooms[occKey{roomID, slot}]
	return !taken
}

func (s *scheduleState) hasDay(courseID string, day models.Day) bool {
	for _, b := range s.placed[courseID] {
		if b.day == day {
			return true
		}
	}
	return false
}

func (s *scheduleState) place(d *courseDemand, b block) {
	course := d.course
	for _, slot := range b.slots {
		s.classrooms[occKey{course.ClassroomID, slot}] = course.ID
		for _, instructorID := range course.InstructorIDs {
			s.instructors[occKey{instructorID, slot}] = course.ID
		}
		if b.roomID != "" {
			s.rooms[occKey{b.roomID, slot}] = course.ID
		}
	}
	for _, instructorID := range course.InstructorIDs {
		s.load(instructorID).Reserve(b.day, len(b.slots))
	}
	s.bumpClassroomDay(course.ClassroomID, b.day, len(b.slots))
	s.placed[course.ID] = append(s.placed[course.ID], b)
	if _, ok := s.seq[course.ID]; !ok {
		s.nextSeq++
		s.seq[course.ID] = s.nextSeq
	}
}

// removeCourse undoes every block of a course placed during this run.
func (s *scheduleState) removeCourse(d *courseDemand) {
	course := d.course
	for _, b := range s.placed[course.ID] {
		for _, slot := range b.slots {
			delete(s.classrooms, occKey{course.ClassroomID, slot})
			for _, instructorID := range course.InstructorIDs {
				delete(s.instructors, occKey{instructorID, slot})
			}
			if b.roomID != "" {
				delete(s.rooms, occKey{b.roomID, slot})
			}
		}
		for _, instructorID := range course.InstructorIDs {
			s.load(instructorID).Release(b.day, len(b.slots))
		}
		s.bumpClassroomDay(course.ClassroomID, b.day, -len(b.slots))
	}
	delete(s.placed, course.ID)
	delete(s.seq, course.ID)
}

func (s *scheduleState) complete(d *courseDemand) bool {
	return len(s.placed[d.course.ID]) == len(d.blocks)
}

func (s *scheduleState) courseScore(courseID string) float64 {
	total := 0.0
	for _, b := range s.placed[courseID] {
		total += b.score
	}
	return total
}

func (s *scheduleState) placedCourses() int {
	n := 0
	for _, d := range s.ix.demands {
		if d.needed > 0 && s.complete(d) {
			n++
		}
	}
	return n
}

func (s *scheduleState) placedPeriods() int {
	n := 0
	for _, blocks := range s.placed {
		for _, b := range blocks {
			n += len(b.slots)
		}
	}
	return n
}

func (s *scheduleState) totalScore() float64 {
	total := 0.0
	for courseID := range s.placed {
		total += s.courseScore(courseID)
	}
	return total
}

// betterThan orders states by placed courses, then placed periods, then soft score.
func (s *scheduleState) betterThan(other *scheduleState) bool {
	if other == nil {
		return true
	}
	if a, b := s.placedCourses(), other.placedCourses(); a != b {
		return a > b
	}
	if a, b := s.placedPeriods(), other.placedPeriods(); a != b {
		return a > b
	}
	return s.totalScore() > other.totalScore()+1e-9
}

func (s *scheduleState) clone() *scheduleState {
	out := &scheduleState{
		ix:           s.ix,
		classrooms:   s.classrooms.clone(),
		instructors:  s.instructors.clone(),
		rooms:        s.rooms.clone(),
		loads:        make(map[string]*instructorLoad, len(s.loads)),
		classroomDay: make(map[string]map[models.Day]int, len(s.classroomDay)),
		placed:       make(map[string][]block, len(s.placed)),
		seq:          make(map[string]int, len(s.seq)),
		nextSeq:      s.nextSeq,
	}
	for id, l := range s.loads {
		out.loads[id] = l.clone()
	}
	for id, days := range s.classroomDay {
		copied := make(map[models.Day]int, len(days))
		for day, n := range days {
			copied[day] = n
		}
		out.classroomDay[id] = copied
	}
	for id, blocks := range s.placed {
		out.placed[id] = append([]block(nil), blocks...)
	}
	for id, n := range s.seq {
		out.seq[id] = n
	}
	return out
}

// owners returns the run-placed courses holding any resource the course needs at slot.
func (s *scheduleState) owners(d *courseDemand, slot models.TimeSlot, into map[string]struct{}) {
	add := func(owner string) {
		if owner != "" && owner != fixedOwner && owner != d.course.ID {
			into[owner] = struct{}{}
		}
	}
	add(s.classrooms[occKey{d.course.ClassroomID, slot}])
	for _, instructorID := range d.course.InstructorIDs {
		add(s.instructors[occKey{instructorID, slot}])
	}
	if d.course.RequiredRoomType != "" {
		for _, room := range s.ix.rooms {
			if room.RoomType == d.course.RequiredRoomType {
				add(s.rooms[occKey{room.ID, slot}])
			}
		}
	}
}

// placements flattens the run's blocks in classroom, day, period order.
func (s *scheduleState) placements() []Placement {
	var out []Placement
	for courseID, blocks := range s.placed {
		d := s.ix.demandByID[courseID]
		for _, b := range blocks {
			for _, slot := range b.slots {
				out = append(out, Placement{
					CourseID:      courseID,
					SubjectID:     d.course.SubjectID,
					ClassroomID:   d.course.ClassroomID,
					InstructorIDs: append([]string(nil), d.course.InstructorIDs...),
					Day:           slot.Day,
					PeriodID:      slot.PeriodID,
					RoomID:        b.roomID,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ClassroomID != b.ClassroomID {
			return a.ClassroomID < b.ClassroomID
		}
		if a.Day != b.Day {
			return a.Day.Index() < b.Day.Index()
		}
		if pa, pb := s.ix.periodPos[a.PeriodID], s.ix.periodPos[b.PeriodID]; pa != pb {
			return pa < pb
		}
		return a.CourseID < b.CourseID
	})
	return out
}
