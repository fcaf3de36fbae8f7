package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// Filter selects batch items with a CEL expression, for example
//
//	isHazardous && score >= 8.0
//	reasons.exists(r, r.startsWith("Regex Match: "))
//	failed
type Filter struct {
	expr    string
	program cel.Program
}

var filterEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("index", cel.IntType),
		cel.Variable("bookingId", cel.StringType),
		cel.Variable("isHazardous", cel.BoolType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("reasons", cel.ListType(cel.StringType)),
		cel.Variable("failed", cel.BoolType),
		cel.Variable("error", cel.StringType),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	filterEnv = env
}

// NewFilter compiles expr. The expression must evaluate to bool.
func NewFilter(expr string) (*Filter, error) {
	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter must return bool, got %s", ast.OutputType())
	}

	program, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against one item.
func (f *Filter) Match(item domain.BatchItem) (bool, error) {
	activation := map[string]any{
		"index":       item.Index,
		"bookingId":   item.BookingID,
		"isHazardous": false,
		"score":       0.0,
		"reasons":     []string{},
		"failed":      item.Failed(),
		"error":       item.Error,
	}
	if r := item.Result; r != nil {
		activation["isHazardous"] = r.IsHazardous
		activation["score"] = r.Score
		activation["reasons"] = r.Reasons
	}

	out, _, err := f.program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("filter evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	return ok && bool(b), nil
}

// Apply returns the items the filter selects, in order.
func (f *Filter) Apply(items []domain.BatchItem) ([]domain.BatchItem, error) {
	out := make([]domain.BatchItem, 0, len(items))
	for _, item := range items {
		ok, err := f.Match(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}
