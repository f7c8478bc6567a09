// Package engine decides forced password rotation with an OPA Rego policy.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/rego"
)

const rotationQuery = "data.transit.password_rotation.must_change_password"

// DefaultRotationPolicy forces a password change on the first completed login of an
// account that is subject to rotation (not root, not admin, not exempt).
const DefaultRotationPolicy = `package transit.password_rotation

default subject_to_rotation := false

default must_change_password := false

subject_to_rotation if {
	not input.is_root
	not input.is_admin
	not input.exempt
}

must_change_password if {
	subject_to_rotation
	not input.has_logged_in
}
`

// RotationInput describes the account being authenticated.
type RotationInput struct {
	IsRoot      bool `json:"is_root"`
	IsAdmin     bool `json:"is_admin"`
	Exempt      bool `json:"exempt"`
	HasLoggedIn bool `json:"has_logged_in"`
}

// Evaluator decides whether an account must change its password before using the API.
type Evaluator interface {
	MustChangePassword(ctx context.Context, in RotationInput) (bool, error)
}

// DefaultRotation is DefaultRotationPolicy in Go, used when Rego evaluation fails.
func DefaultRotation(in RotationInput) bool {
	if in.IsRoot || in.IsAdmin || in.Exempt {
		return false
	}
	return !in.HasLoggedIn
}

// OPAEvaluator evaluates the rotation policy with a query prepared once at startup.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module (DefaultRotationPolicy when empty). The module must
// define data.transit.password_rotation.must_change_password.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultRotationPolicy
	}
	q, err := rego.New(
		rego.Query(rotationQuery),
		rego.Module("password_rotation.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rotation policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// MustChangePassword evaluates the policy. On evaluation failure it logs and falls
// back to DefaultRotation, so a login is never blocked by the policy engine.
func (e *OPAEvaluator) MustChangePassword(ctx context.Context, in RotationInput) (bool, error) {
	v, err := e.eval(ctx, in)
	if err != nil {
		log.Printf("policy: rotation evaluation failed: %v, using defaults", err)
		return DefaultRotation(in), nil
	}
	return v, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in RotationInput) (bool, error) {
	input := map[string]interface{}{
		"is_root":       in.IsRoot,
		"is_admin":      in.IsAdmin,
		"exempt":        in.Exempt,
		"has_logged_in": in.HasLoggedIn,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy result is %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck verifies the prepared query evaluates. Used by readiness.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, RotationInput{})
	return err
}
