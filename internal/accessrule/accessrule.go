// Package accessrule compiles a Host's AccessRule rows into CEL programs the
// worker's exception tree evaluates against a request (spec.md §3's
// AccessRule entity: "typed rule ... used to compose exception trees the
// worker consults during request evaluation"). The control plane's role is
// only to validate and compile rules at write time so malformed expressions
// are rejected before they ever reach an edge worker; it does not itself
// sit on the request path.
package accessrule

import (
	"fmt"
	"net"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/sunrayhq/control-plane/internal/models"
)

// env is the shared CEL environment: every access rule is compiled against
// a single `ip` string variable (the request's client IP) and evaluates to
// a bool. ipInCidr is a custom function (CEL has no built-in CIDR support)
// so the generated "cidr" rule expressions can call it directly.
var env = mustNewEnv()

func mustNewEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("ip", cel.StringType),
		cel.Function("ipInCidr",
			cel.Overload("ip_in_cidr_string_string",
				[]*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(ipInCidr)),
		),
	)
	if err != nil {
		panic(fmt.Sprintf("accessrule: build cel env: %v", err))
	}
	return e
}

func ipInCidr(lhs, rhs ref.Val) ref.Val {
	ipStr, ok := lhs.Value().(string)
	if !ok {
		return types.Bool(false)
	}
	cidrStr, ok := rhs.Value().(string)
	if !ok {
		return types.Bool(false)
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return types.Bool(false)
	}
	_, network, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return types.Bool(false)
	}
	return types.Bool(network.Contains(ip))
}

// Compiled is a validated, ready-to-evaluate access rule.
type Compiled struct {
	Rule    *models.AccessRule
	program cel.Program
}

// Compile validates rule.Value as a CEL boolean expression over `ip` and
// returns a Compiled program. For the built-in "cidr" rule type, Value is a
// bare CIDR/IP literal rather than a CEL expression; a bare IP is translated
// into an `ip == "<value>"` equality and a CIDR block into an
// `ipInCidr(ip, "<value>")` call.
func Compile(rule *models.AccessRule) (*Compiled, error) {
	expr := rule.Value
	if rule.RuleType == "cidr" {
		var err error
		expr, err = cidrExpr(rule.Value)
		if err != nil {
			return nil, fmt.Errorf("accessrule: %s: %w", rule.ID, err)
		}
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("accessrule: compile %s: %w", rule.ID, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("accessrule: build program %s: %w", rule.ID, err)
	}
	return &Compiled{Rule: rule, program: prg}, nil
}

// Matches evaluates the compiled rule against a client IP.
func (c *Compiled) Matches(clientIP string) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{"ip": clientIP})
	if err != nil {
		return false, fmt.Errorf("accessrule: eval %s: %w", c.Rule.ID, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("accessrule: %s did not evaluate to bool", c.Rule.ID)
	}
	return matched, nil
}

// cidrExpr validates value as an IP literal or CIDR block at compile time
// (catching typos before the rule is ever stored) and emits the CEL
// expression a worker would use to test membership.
func cidrExpr(value string) (string, error) {
	if ip := net.ParseIP(value); ip != nil {
		return fmt.Sprintf("ip == %q", value), nil
	}
	if _, _, err := net.ParseCIDR(value); err != nil {
		return "", fmt.Errorf("invalid CIDR or IP literal %q: %w", value, err)
	}
	return fmt.Sprintf("ipInCidr(ip, %q)", value), nil
}

// CompileTree compiles every AccessRule attached to a host. Invalid rules
// are reported individually so an admin write can surface which rule row
// failed rather than aborting the whole set silently.
func CompileTree(rules []*models.AccessRule) ([]*Compiled, error) {
	out := make([]*Compiled, 0, len(rules))
	for _, r := range rules {
		c, err := Compile(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
