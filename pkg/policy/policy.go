// Package policy decides whether a proposed plan may skip human review.
//
// Rules are CEL expressions evaluated against the plan and its source
// classification. Evaluation is fail-closed: a rule that errors, or any
// rule that matches, routes the plan to human review. Auto-approval
// requires every rule to come back clean.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/vento-labs/lexops/pkg/classification"
	"github.com/vento-labs/lexops/pkg/plan"
)

// ErrPolicy marks a rule that could not be compiled or evaluated.
var ErrPolicy = errors.New("policy evaluation failed")

// Rule is one review trigger. When Expr evaluates to true the plan
// requires human review.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// RuleSet is the serialized form of the review rules.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRuleSet decodes a YAML rule set.
func ParseRuleSet(raw []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("%w: parse rule set: %v", ErrPolicy, err)
	}
	return &rs, nil
}

// Decision is the outcome for one plan.
type Decision struct {
	AutoApprove bool
	// Matched lists the names of the rules that triggered review.
	Matched []string
}

// Engine evaluates review rules. Compiled programs are cached per
// expression; the engine is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	rules    []Rule
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// DefaultRules are always enforced, ahead of any configured rules.
var DefaultRules = []Rule{
	// Urgent notifications are never auto-approved.
	{Name: "urgent", Expr: `classification.urgent`},
	// Anything touching the client needs a human eye.
	{Name: "client-contact", Expr: `plan.actions.exists(a, a.type == "SEND_EMAIL_CLIENT" || a.type == "REQUEST_POWER")`},
	// A plan without a resolved case files blind.
	{Name: "unresolved-case", Expr: `!has(classification.suggested_case_id)`},
}

// NewEngine creates an engine enforcing DefaultRules plus the given
// extra rules.
func NewEngine(extra ...Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("plan", cel.DynType),
		cel.Variable("classification", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create environment: %v", ErrPolicy, err)
	}
	rules := make([]Rule, 0, len(DefaultRules)+len(extra))
	rules = append(rules, DefaultRules...)
	rules = append(rules, extra...)
	return &Engine{
		env:      env,
		rules:    rules,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Evaluate runs every rule against the plan. Rules that trigger are
// collected rather than short-circuited so the reviewer sees the full
// picture.
func (e *Engine) Evaluate(_ context.Context, p *plan.Plan, cls *classification.Result) (*Decision, error) {
	input := map[string]any{
		"now":            time.Now().Unix(),
		"plan":           planInput(p),
		"classification": classificationInput(cls),
	}

	dec := &Decision{AutoApprove: true}
	for _, rule := range e.rules {
		triggered, err := e.evaluateExpr(rule.Expr, input)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrPolicy, rule.Name, err)
		}
		if triggered {
			dec.AutoApprove = false
			dec.Matched = append(dec.Matched, rule.Name)
		}
	}
	return dec, nil
}

func (e *Engine) evaluateExpr(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result is %T, want bool", out.Value())
	}
	return val, nil
}

// planInput projects the fields rules may reference. Keeping the
// surface explicit avoids leaking internal structure into expressions.
func planInput(p *plan.Plan) map[string]any {
	actions := make([]map[string]any, 0, len(p.Actions))
	for _, a := range p.Actions {
		actions = append(actions, map[string]any{
			"order":  a.Order,
			"type":   string(a.Type),
			"status": string(a.Status),
			"title":  a.Title,
		})
	}
	return map[string]any{
		"id":           p.ID,
		"subject_id":   p.SubjectID,
		"status":       string(p.Status),
		"action_count": len(p.Actions),
		"actions":      actions,
	}
}

func classificationInput(cls *classification.Result) map[string]any {
	in := map[string]any{
		"notification_id":  cls.NotificationID,
		"court":            cls.Court,
		"procedure_number": cls.ProcedureNumber,
		"act_type":         string(cls.ActType),
		"urgent":           cls.Urgent,
		"scope":            cls.Scope,
		"deadline_count":   len(cls.Deadlines),
		"has_hearing":      cls.Hearing != nil,
	}
	if cls.SuggestedCaseID != nil {
		in["suggested_case_id"] = *cls.SuggestedCaseID
	}
	return in
}
