// Package plan validates proposed task lists before any execution begins.
// Validation is a pure function of the plan; a rejected plan is discarded
// whole and regenerated, never patched.
package plan

import (
	"fmt"

	"github.com/albarami/veristat/internal/model"
)

// Result is the outcome of one validation pass.
type Result struct {
	Valid         bool
	Errors        []string
	Warnings      []string
	TaskCount     int
	PhaseCoverage map[string]int
}

var validFieldKinds = map[model.FieldKind]bool{
	model.FieldCount:      true,
	model.FieldProportion: true,
	model.FieldStatistic:  true,
	model.FieldExact:      true,
}

// Validate runs every check and reports all violations at once.
// Check order: task count, required coverage, derivation declarations,
// duplicate ids, dependency references.
func Validate(p *model.Plan, cfg model.PlanConfig) Result {
	errs := &ValidationErrors{}
	var warnings []string

	if p == nil {
		errs.Add("plan", "no plan proposed")
		return Result{Valid: false, Errors: errs.Messages()}
	}

	tasks := p.Tasks

	// (a) task count range
	if len(tasks) < cfg.MinTasks || len(tasks) > cfg.MaxTasks {
		errs.Add("tasks", fmt.Sprintf("task count %d outside allowed range [%d, %d]",
			len(tasks), cfg.MinTasks, cfg.MaxTasks))
	}

	// (b) required phase and type coverage
	phaseCoverage := make(map[string]int)
	presentTypes := make(map[string]bool)
	for _, t := range tasks {
		phaseCoverage[t.Phase]++
		presentTypes[t.Type] = true
	}
	for _, phase := range cfg.RequiredPhases {
		if phaseCoverage[phase] == 0 {
			errs.Add("tasks", fmt.Sprintf("required phase %q has no tasks", phase))
		}
	}
	for _, taskType := range cfg.RequiredTypes {
		if !presentTypes[taskType] {
			errs.Add("tasks", fmt.Sprintf("required task type %q missing", taskType))
		}
	}

	idIndex := make(map[string]int, len(tasks))
	sheetSeen := make(map[string]bool, len(tasks))

	for i, t := range tasks {
		prefix := fmt.Sprintf("tasks[%d]", i)
		validateTaskFields(t, prefix, errs)

		// (c) numeric outputs need a declared derivation method
		if len(t.Checks) > 0 && t.Method == "" {
			errs.Add(prefix+".method",
				fmt.Sprintf("task %s declares numeric checks but no derivation method", t.ID))
		}
		for j, check := range t.Checks {
			checkPrefix := fmt.Sprintf("%s.checks[%d]", prefix, j)
			if check.Name == "" {
				errs.Add(checkPrefix+".name", "required field is missing")
			}
			if check.Cell == "" {
				errs.Add(checkPrefix+".cell", "required field is missing")
			}
			if check.Stat == "" {
				errs.Add(checkPrefix+".stat", "required field is missing")
			}
			if !validFieldKinds[check.Kind] {
				errs.Add(checkPrefix+".kind", fmt.Sprintf("unknown field kind %q", check.Kind))
			}
		}

		// reliability tasks need at least two scale items
		if t.Type == "reliability_alpha" && len(t.ScaleItems) < 2 {
			errs.Add(prefix+".scale_items",
				fmt.Sprintf("task %s: reliability analysis requires at least 2 scale items", t.ID))
		}

		// (d) duplicate task ids
		if t.ID != "" {
			if prev, dup := idIndex[t.ID]; dup {
				errs.Add(prefix+".id", fmt.Sprintf("duplicate task id %q (first at tasks[%d])", t.ID, prev))
			} else {
				idIndex[t.ID] = i
			}
		}

		if t.OutputSheet != "" {
			if sheetSeen[t.OutputSheet] {
				errs.Add(prefix+".output_sheet", fmt.Sprintf("duplicate output sheet %q", t.OutputSheet))
			}
			sheetSeen[t.OutputSheet] = true
		}
	}

	// (e) dependencies must reference strictly earlier tasks
	for i, t := range tasks {
		for j, dep := range t.DependsOn {
			field := fmt.Sprintf("tasks[%d].depends_on[%d]", i, j)
			depIdx, ok := idIndex[dep]
			switch {
			case !ok:
				errs.Add(field, fmt.Sprintf("references unknown task %q", dep))
			case depIdx == i:
				errs.Add(field, fmt.Sprintf("task %q depends on itself", t.ID))
			case depIdx > i:
				errs.Add(field, fmt.Sprintf("forward reference to task %q (tasks execute in plan order)", dep))
			}
		}
	}

	return Result{
		Valid:         !errs.HasErrors(),
		Errors:        errs.Messages(),
		Warnings:      warnings,
		TaskCount:     len(tasks),
		PhaseCoverage: phaseCoverage,
	}
}

func validateTaskFields(t model.TaskSpec, prefix string, errs *ValidationErrors) {
	if t.ID == "" {
		errs.Add(prefix+".id", "required field is missing")
	}
	if t.Name == "" {
		errs.Add(prefix+".name", "required field is missing")
	}
	if t.Objective == "" {
		errs.Add(prefix+".objective", "required field is missing")
	}
	if t.OutputSheet == "" {
		errs.Add(prefix+".output_sheet", "required field is missing")
	}
	if t.Phase == "" {
		errs.Add(prefix+".phase", "required field is missing")
	}
}
