package constraint

import (
	"sort"

	"github.com/dispatchlab/fieldops/core/model"
)

// Candidates returns the technicians statically eligible for the job, in
// ascending id order. Eligibility covers presence, a non-zero daily cap,
// skill match when required, and a shift overlapping the job window. Route
// feasibility is judged later during insertion.
func Candidates(job model.Job, techs []model.Technician, cs model.ConstraintSet) []model.Technician {
	var out []model.Technician
	for _, t := range techs {
		if t.Absent {
			continue
		}
		if cs.CapFor(t) <= 0 {
			continue
		}
		if cs.SkillMatchRequired && !t.HasSkills(job.Skills) {
			continue
		}
		shift := cs.ShiftFor(t)
		if shift.IsZero() || !shift.Overlaps(job.Window) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
