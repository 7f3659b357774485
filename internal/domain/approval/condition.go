package approval

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"docflow/internal/core/apperror"
)

// Conditions compiles and evaluates rule conditions. Expressions see
// `amount` (double), `document_type` (string) and `attributes` (map).
//
//	amount >= 5000.0 && attributes.customer_tier == "new"
type Conditions struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewConditions builds the CEL environment.
func NewConditions() (*Conditions, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("document_type", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Conditions{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile checks that expr is a valid boolean expression.
func (c *Conditions) Compile(expr string) error {
	_, err := c.program(expr)
	return err
}

func (c *Conditions) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewConfiguration("invalid approval rule condition").
			WithDetail("condition", expr).
			WithCause(iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, apperror.NewConfiguration("approval rule condition must be boolean").
			WithDetail("condition", expr)
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}

	c.mu.Lock()
	c.programs[expr] = prg
	c.mu.Unlock()
	return prg, nil
}

// Matches evaluates expr against doc. An empty expression always matches.
func (c *Conditions) Matches(expr string, doc Document) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := c.program(expr)
	if err != nil {
		return false, err
	}
	attrs := doc.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"amount":        doc.Amount.InexactFloat64(),
		"document_type": doc.Type,
		"attributes":    attrs,
	})
	if err != nil {
		return false, apperror.NewConfiguration("approval rule condition failed to evaluate").
			WithDetail("condition", expr).
			WithCause(err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewConfiguration("approval rule condition did not return a boolean").
			WithDetail("condition", expr)
	}
	return b, nil
}
