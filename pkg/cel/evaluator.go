package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Request is the view of a not-found request that ignore rules can inspect.
type Request struct {
	URL       string
	Path      string
	Referrer  string
	UserAgent string
	ClientIP  string
}

func (r Request) vars() map[string]interface{} {
	return map[string]interface{}{
		"url":        r.URL,
		"path":       r.Path,
		"referrer":   r.Referrer,
		"user_agent": r.UserAgent,
		"client_ip":  r.ClientIP,
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("url", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("referrer", cel.StringType),
		cel.Variable("user_agent", cel.StringType),
		cel.Variable("client_ip", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// CompileRule compiles a boolean rule expression.
func (e *Evaluator) CompileRule(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) ValidateRule(expression string) error {
	_, err := e.CompileRule(expression)
	return err
}

func evaluate(ctx context.Context, program cel.Program, req Request) (bool, error) {
	result, _, err := program.ContextEval(ctx, req.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
