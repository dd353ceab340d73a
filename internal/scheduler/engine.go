package scheduler

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// maxRetriesPerCourse bounds how often one course may displace others.
const maxRetriesPerCourse = 3

const (
	reasonTimeout    = "search timed out before the course was placed"
	reasonIterations = "iteration limit reached before the course was placed"
)

// Engine runs scheduling algorithms over a Problem.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine builds an engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, now: time.Now}
}

// run carries the mutable bookkeeping of one Schedule call.
type run struct {
	ctx        context.Context
	ix         *index
	opts       Options
	deadline   time.Time
	now        func() time.Time
	iterations int
	timedOut   bool
	done       int
	total      int
	reasons    map[string]string
}

// Schedule places every course of the problem that still needs periods. On cancellation the
// partial result is returned together with ErrCancelled; callers must not persist it.
func (e *Engine) Schedule(ctx context.Context, p Problem, opts Options) (*Result, error) {
	started := e.now()
	opts = opts.withDefaults()
	ix := newIndex(p)

	r := &run{
		ctx:     ctx,
		ix:      ix,
		opts:    opts,
		now:     e.now,
		reasons: make(map[string]string),
	}
	if opts.Timeout > 0 {
		r.deadline = started.Add(opts.Timeout)
	}

	pending := ix.pending()
	r.total = len(pending)

	fixed := newScheduleState(ix)
	preFailed := 0
	schedulable := make([]*courseDemand, 0, len(pending))
	for _, d := range pending {
		if conflict, ok := ix.checkDemand(fixed, d); !ok {
			r.reasons[d.course.ID] = conflict.Reason
			preFailed++
			continue
		}
		schedulable = append(schedulable, d)
	}
	r.report(preFailed)
	order := ix.order(fixed, schedulable, opts.Weights)

	var (
		state *scheduleState
		err   error
	)
	switch opts.Algorithm {
	case models.AlgorithmGreedy:
		state, _, err = r.greedy(newScheduleState(ix), order, preFailed)
	case models.AlgorithmHybrid:
		var unplaced []*courseDemand
		state, unplaced, err = r.greedy(newScheduleState(ix), order, preFailed)
		if err == nil && len(unplaced) > 0 && !r.expired() {
			e.logger.Debug("hybrid falling back to backtracking", zap.Int("unplaced", len(unplaced)))
			var repaired *scheduleState
			repaired, err = r.backtrack(state.clone(), unplaced, preFailed)
			if repaired != nil && repaired.betterThan(state) {
				state = repaired
			}
		}
	default:
		state, err = r.backtrack(newScheduleState(ix), order, preFailed)
	}

	result := r.result(state, pending)
	result.Duration = e.now().Sub(started)
	if err != nil {
		return result, err
	}
	r.report(r.total)
	e.logger.Debug("schedule computed",
		zap.String("algorithm", string(opts.Algorithm)),
		zap.Int("scheduled", result.ScheduledCourses),
		zap.Int("failed", len(result.FailedCourses)),
		zap.Float64("quality", result.QualityScore),
		zap.Int("iterations", result.Iterations),
	)
	return result, nil
}

// order sorts courses hardest first: fewest legal blocks, most periods, then subject,
// classroom and course id so ties never depend on input order.
func (ix *index) order(fixed *scheduleState, demands []*courseDemand, w models.QualityWeights) []*courseDemand {
	legal := make(map[string]int, len(demands))
	for _, d := range demands {
		if len(d.blocks) == 0 {
			continue
		}
		legal[d.course.ID] = len(fixed.candidates(d, d.blocks[0], w, nil))
	}
	out := append([]*courseDemand(nil), demands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if legal[a.course.ID] != legal[b.course.ID] {
			return legal[a.course.ID] < legal[b.course.ID]
		}
		if a.needed != b.needed {
			return a.needed > b.needed
		}
		if a.course.SubjectID != b.course.SubjectID {
			return a.course.SubjectID < b.course.SubjectID
		}
		if a.course.ClassroomID != b.course.ClassroomID {
			return a.course.ClassroomID < b.course.ClassroomID
		}
		return a.course.ID < b.course.ID
	})
	return out
}

// greedy places each course once in order and never revisits a decision.
func (r *run) greedy(state *scheduleState, order []*courseDemand, preFailed int) (*scheduleState, []*courseDemand, error) {
	var unplaced []*courseDemand
	for i, d := range order {
		if err := r.checkpoint(); err != nil {
			return state, unplaced, err
		}
		r.iterations++
		if reason, ok := r.place(state, d); !ok {
			r.reasons[d.course.ID] = reason
			unplaced = append(unplaced, d)
		}
		r.report(preFailed + i + 1)
	}
	return state, unplaced, nil
}

// backtrack works through a queue; when a course does not fit it evicts up to MaxBacktrack
// courses blocking it (most recently placed, lowest score first) and retries it first.
func (r *run) backtrack(state *scheduleState, queue []*courseDemand, preFailed int) (*scheduleState, error) {
	best := state.clone()
	attempts := make(map[string]int)
	queue = append([]*courseDemand(nil), queue...)

	for len(queue) > 0 {
		if err := r.checkpoint(); err != nil {
			return r.pick(state, best), err
		}
		if r.expired() {
			r.timedOut = true
			r.failRemaining(state, queue, reasonTimeout)
			break
		}
		if r.iterations >= r.opts.MaxIterations {
			r.failRemaining(state, queue, reasonIterations)
			break
		}
		r.iterations++

		d := queue[0]
		queue = queue[1:]
		if state.complete(d) {
			continue
		}
		reason, ok := r.place(state, d)
		if ok {
			delete(r.reasons, d.course.ID)
			if state.betterThan(best) {
				best = state.clone()
			}
			r.report(preFailed + state.placedCourses())
			continue
		}
		r.reasons[d.course.ID] = reason
		if attempts[d.course.ID] >= maxRetriesPerCourse {
			continue
		}
		evicted := r.blockers(state, d)
		if len(evicted) == 0 {
			continue
		}
		attempts[d.course.ID]++
		for _, b := range evicted {
			state.removeCourse(b)
		}
		next := make([]*courseDemand, 0, len(queue)+len(evicted)+1)
		next = append(next, d)
		next = append(next, evicted...)
		queue = append(next, dequeue(queue, evicted)...)
	}
	return r.pick(state, best), nil
}

func (r *run) pick(state, best *scheduleState) *scheduleState {
	if best.betterThan(state) {
		return best
	}
	return state
}

// place commits all remaining blocks of a course or none of them.
func (r *run) place(state *scheduleState, d *courseDemand) (string, bool) {
	for _, size := range d.blocks[len(state.placed[d.course.ID]):] {
		var why rejections
		b, ok := state.best(d, size, r.opts.Weights, &why)
		if !ok {
			state.removeCourse(d)
			return why.reason(d, size), false
		}
		state.place(d, b)
	}
	return "", true
}

// blockers lists placed courses occupying resources the course could otherwise use.
func (r *run) blockers(state *scheduleState, d *courseDemand) []*courseDemand {
	size := d.blocks[0]
	owners := make(map[string]struct{})
	for _, day := range r.ix.days {
		if d.usedDays[day] {
			continue
		}
		for start := 0; start+size <= len(r.ix.periods); start++ {
			slots, ok := r.ix.slotsFrom(day, start, size)
			if !ok || r.hardBlocked(state, d, slots) {
				continue
			}
			for _, slot := range slots {
				state.owners(d, slot, owners)
			}
		}
	}

	out := make([]*courseDemand, 0, len(owners))
	for id := range owners {
		out = append(out, r.ix.demandByID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].course.ID, out[j].course.ID
		if state.seq[a] != state.seq[b] {
			return state.seq[a] > state.seq[b]
		}
		sa, sb := state.courseScore(a), state.courseScore(b)
		if sa != sb {
			return sa < sb
		}
		return a < b
	})
	if len(out) > r.opts.MaxBacktrack {
		out = out[:r.opts.MaxBacktrack]
	}
	return out
}

// hardBlocked reports slots no eviction can free: instructor unavailability or fixed entries.
func (r *run) hardBlocked(state *scheduleState, d *courseDemand, slots []models.TimeSlot) bool {
	for _, slot := range slots {
		if state.classrooms[occKey{d.course.ClassroomID, slot}] == fixedOwner {
			return true
		}
		for _, instructorID := range d.course.InstructorIDs {
			if r.ix.instructorBlocked(instructorID, slot) || state.instructors[occKey{instructorID, slot}] == fixedOwner {
				return true
			}
		}
	}
	return false
}

func (r *run) failRemaining(state *scheduleState, queue []*courseDemand, reason string) {
	for _, d := range queue {
		if !state.complete(d) {
			r.reasons[d.course.ID] = reason
		}
	}
}

func (r *run) checkpoint() error {
	if r.ctx != nil && r.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (r *run) expired() bool {
	return !r.deadline.IsZero() && !r.now().Before(r.deadline)
}

// report publishes progress; it never moves backwards.
func (r *run) report(done int) {
	if done > r.total {
		done = r.total
	}
	if done <= r.done {
		return
	}
	r.done = done
	if r.opts.Progress != nil {
		r.opts.Progress(done, r.total)
	}
}

func (r *run) result(state *scheduleState, pending []*courseDemand) *Result {
	res := &Result{
		Placements:    state.placements(),
		FailedCourses: []models.FailedCourse{},
		TotalCourses:  len(pending),
		Iterations:    r.iterations,
		TimedOut:      r.timedOut,
	}
	for _, d := range pending {
		if d.invalid == nil && state.complete(d) {
			res.ScheduledCourses++
			continue
		}
		reason := r.reasons[d.course.ID]
		if reason == "" {
			reason = "not placed"
		}
		res.FailedCourses = append(res.FailedCourses, models.FailedCourse{
			CourseID:    d.course.ID,
			SubjectCode: d.course.SubjectCode,
			SubjectName: d.course.SubjectName,
			Classroom:   classroomLabel(d.course),
			Reason:      reason,
		})
	}
	res.QualityScore = state.quality(len(res.FailedCourses), r.opts.Weights)
	return res
}

func dequeue(queue, remove []*courseDemand) []*courseDemand {
	skip := make(map[string]bool, len(remove))
	for _, d := range remove {
		skip[d.course.ID] = true
	}
	out := queue[:0:0]
	for _, d := range queue {
		if !skip[d.course.ID] {
			out = append(out, d)
		}
	}
	return out
}
