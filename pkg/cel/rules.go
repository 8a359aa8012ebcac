package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

type rule struct {
	expression string
	program    cel.Program
}

// RuleSet is an ordered list of compiled ignore rules. A request matches when
// any rule evaluates to true.
type RuleSet struct {
	rules []rule
}

// NewRuleSet compiles every expression up front; one bad rule fails the set.
func NewRuleSet(expressions []string) (*RuleSet, error) {
	if len(expressions) == 0 {
		return &RuleSet{}, nil
	}

	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	rules := make([]rule, 0, len(expressions))
	for i, expr := range expressions {
		program, err := eval.CompileRule(expr)
		if err != nil {
			return nil, fmt.Errorf("ignore rule %d (%q): %w", i, expr, err)
		}
		rules = append(rules, rule{expression: expr, program: program})
	}
	return &RuleSet{rules: rules}, nil
}

func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Match returns the first matching expression. Rules that fail to evaluate
// are skipped and reported through errs so that one broken rule cannot
// silence every alert.
func (s *RuleSet) Match(ctx context.Context, req Request) (matched string, errs []error) {
	if s == nil {
		return "", nil
	}
	for _, r := range s.rules {
		ok, err := evaluate(ctx, r.program, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("ignore rule %q: %w", r.expression, err))
			continue
		}
		if ok {
			return r.expression, errs
		}
	}
	return "", errs
}
