package accessrule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/models"
)

func TestCompile_CIDRRule(t *testing.T) {
	t.Parallel()

	rule := &models.AccessRule{ID: "r1", RuleType: "cidr", Value: "10.0.0.0/8"}
	compiled, err := Compile(rule)
	require.NoError(t, err)

	matched, err := compiled.Matches("10.1.2.3")
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = compiled.Matches("192.168.1.1")
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestCompile_BareIPLiteral(t *testing.T) {
	t.Parallel()

	rule := &models.AccessRule{ID: "r2", RuleType: "cidr", Value: "203.0.113.7"}
	compiled, err := Compile(rule)
	require.NoError(t, err)

	matched, err := compiled.Matches("203.0.113.7")
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = compiled.Matches("203.0.113.8")
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestCompile_InvalidCIDRRejected(t *testing.T) {
	t.Parallel()
	rule := &models.AccessRule{ID: "r3", RuleType: "cidr", Value: "not-an-ip"}
	_, err := Compile(rule)
	require.Error(t, err)
}

func TestCompile_RawCELExpression(t *testing.T) {
	t.Parallel()
	// A non-"cidr" rule type's Value is used directly as a CEL expression.
	rule := &models.AccessRule{ID: "r4", RuleType: "expr", Value: `ip == "1.2.3.4"`}
	compiled, err := Compile(rule)
	require.NoError(t, err)

	matched, err := compiled.Matches("1.2.3.4")
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestCompile_NonBoolExpressionFailsAtEval(t *testing.T) {
	t.Parallel()
	rule := &models.AccessRule{ID: "r5", RuleType: "expr", Value: `ip`}
	compiled, err := Compile(rule)
	require.NoError(t, err)

	_, err = compiled.Matches("1.2.3.4")
	require.Error(t, err)
}

func TestCompileTree(t *testing.T) {
	t.Parallel()

	rules := []*models.AccessRule{
		{ID: "a", RuleType: "cidr", Value: "10.0.0.0/8"},
		{ID: "b", RuleType: "cidr", Value: "172.16.0.0/12"},
	}
	compiled, err := CompileTree(rules)
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	ok, err := compiled[1].Matches("172.16.5.5")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompileTree_StopsOnFirstInvalidRule(t *testing.T) {
	t.Parallel()

	rules := []*models.AccessRule{
		{ID: "good", RuleType: "cidr", Value: "10.0.0.0/8"},
		{ID: "bad", RuleType: "cidr", Value: "garbage"},
	}
	_, err := CompileTree(rules)
	require.Error(t, err)
}
