package accesscontroller

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
)

// CELController evaluates a CEL boolean expression as the append predicate.
// The expression sees the candidate entry as four variables:
//
//	id      string  the identity id of the author
//	key     string  the author public key
//	payload string  the entry payload
//	time    int     the entry's Lamport time
//
// Example: `id == "admin" || time < 100`. Before the expression runs, the
// entry's identity descriptor is verified against the provider and required
// to carry the entry's signing key, so id and key are never bound from an
// unvalidated descriptor. Verification or evaluation errors deny the
// append.
type CELController struct {
	program cel.Program
}

// NewCELController compiles expr into an append predicate.
func NewCELController(expr string) (*CELController, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("payload", cel.StringType),
		cel.Variable("time", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile access expression: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("access expression must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build access program: %w", err)
	}
	return &CELController{program: program}, nil
}

func (c *CELController) CanAppend(e *entry.Entry, p identity.Provider) bool {
	if p == nil || e.Identity == nil {
		return false
	}
	if e.Key != e.Identity.PublicKey {
		return false
	}
	if err := identity.VerifyIdentity(p, e.Identity); err != nil {
		return false
	}

	out, _, err := c.program.Eval(map[string]interface{}{
		"id":      e.Identity.ID,
		"key":     e.Key,
		"payload": string(e.Payload),
		"time":    e.Clock.Time,
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}
