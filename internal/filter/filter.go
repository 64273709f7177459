// Package filter evaluates CEL filter expressions against memories.
//
// Callers pass expressions like
//
//	type == "decision" && importance >= 7
//	"database" in concepts && phase != ""
//
// through the search and recent endpoints. Expressions are compiled once
// per request and evaluated in-process against each candidate; at the
// store's scale that beats translating CEL into SQL.
package filter

import (
	"time"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/store"
)

// Filter is a compiled expression ready for evaluation.
type Filter struct {
	program cel.Program
}

// env declares the memory fields visible to expressions. Building the
// environment is not free, so it is shared; cel environments are immutable
// and safe for concurrent use.
var env = mustNewEnv()

func mustNewEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("type", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("facts", cel.ListType(cel.StringType)),
		cel.Variable("concepts", cel.ListType(cel.StringType)),
		cel.Variable("source_files", cel.ListType(cel.StringType)),
		cel.Variable("importance", cel.IntType),
		cel.Variable("visibility", cel.StringType),
		cel.Variable("phase", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("created_ts", cel.TimestampType),
		cel.Variable("access_count", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
	return e
}

// Compile parses and type-checks an expression. The result must be a
// boolean; anything else is a validation error for the caller to surface.
func Compile(expression string) (*Filter, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "invalid filter expression")
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("filter expression must evaluate to a boolean, got %s", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}
	return &Filter{program: program}, nil
}

// Matches evaluates the filter against one memory. Evaluation errors count
// as non-matches: a filter touching an empty optional field should narrow
// results, never fail the request.
func (f *Filter) Matches(memory *store.Memory) bool {
	out, _, err := f.program.Eval(map[string]any{
		"id":           memory.ID,
		"type":         string(memory.Type),
		"title":        memory.Title,
		"content":      memory.Content,
		"facts":        memory.Facts,
		"concepts":     memory.Concepts,
		"source_files": memory.SourceFiles,
		"importance":   int64(memory.Importance),
		"visibility":   string(memory.Visibility),
		"phase":        memory.Phase,
		"session_id":   memory.SessionID,
		"created_ts":   time.Unix(memory.CreatedTs, 0).UTC(),
		"access_count": memory.AccessCount,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
