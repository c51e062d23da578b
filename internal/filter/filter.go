// Package filter compiles the pipeline's optional per-host event filter
// expression into a single boolean predicate evaluated against each event.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// Filter evaluates a compiled expression against each raw event; events it
// rejects are dropped before enrichment. A nil *Filter (or one built from an
// empty expression) matches everything.
type Filter struct {
	program *vm.Program
}

// Compile builds a Filter from expr, e.g. `Event.Type != "noise"` or
// `Event.Metadata.HostID startsWith "prod-"`. An empty expression yields a
// pass-everything Filter.
func Compile(exprStr string) (*Filter, error) {
	if exprStr == "" {
		return &Filter{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(map[string]interface{}{
		"Event": &models.Event{},
	}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter expression: %w", err)
	}
	return &Filter{program: program}, nil
}

// Match reports whether ev should continue through the pipeline.
func (f *Filter) Match(ev models.Event) bool {
	if f == nil || f.program == nil {
		return true
	}

	out, err := expr.Run(f.program, map[string]interface{}{"Event": &ev})
	if err != nil {
		return true
	}
	matched, ok := out.(bool)
	return !ok || matched
}
