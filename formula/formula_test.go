package formula_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escuelademusica/liquidaciones/formula"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func vars(base, band, hours string) formula.Vars {
	return formula.Vars{TeacherRate: dec(base), BandRate: dec(band), Hours: dec(hours)}
}

// =============================================================================
// DEFAULT FORMULA
// =============================================================================

func TestEvaluate_DefaultFormula(t *testing.T) {
	// GIVEN: base=50, band=10, hours=4
	// WHEN: Evaluating (valor_profesor + valor_alumnos) * horas
	// THEN: 240
	got := formula.Evaluate(formula.Default, vars("50", "10", "4"))
	assert.True(t, got.Equal(dec("240")), "got %s", got)
}

func TestEvaluate_DefaultFormula_ZeroRates(t *testing.T) {
	for _, h := range []string{"0", "1", "12.5", "999"} {
		got := formula.Evaluate(formula.Default, vars("0", "0", h))
		assert.True(t, got.IsZero(), "hours=%s: got %s", h, got)
	}
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func TestExpression_Arithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"10 - 4 - 3", "3"},
		{"24 / 4 / 2", "3"},
		{"-valor_profesor + 100", "50"},
		{"- -2", "2"},
		{"+3", "3"},
		{".5 * horas", "2"},
		{"valor_profesor * horas + valor_alumnos * horas / 2", "220"},
		{"1.25 + 0.75", "2"},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := formula.Parse(tc.expr)
			require.NoError(t, err)
			got, err := e.Eval(vars("50", "10", "4"))
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestExpression_ReusableAcrossBindings(t *testing.T) {
	e, err := formula.Parse(formula.Default)
	require.NoError(t, err)

	a, err := e.Eval(vars("1", "1", "1"))
	require.NoError(t, err)
	b, err := e.Eval(vars("10", "5", "2"))
	require.NoError(t, err)

	assert.True(t, a.Equal(dec("2")))
	assert.True(t, b.Equal(dec("30")))
	assert.Equal(t, formula.Default, e.String())
}

// =============================================================================
// FAIL-SAFE
// =============================================================================

func TestEvaluate_MalformedFormulasYieldZero(t *testing.T) {
	malformed := []string{
		"",
		"   ",
		"(valor_profesor + valor_alumnos * horas",
		"valor_profesor + valor_alumnos) * horas",
		"valor_profesor +",
		"* horas",
		"1..2",
		"horas horas",
		"valor_extra * horas",
		"__import__('os')",
		"horas ** 2",
		"horas // 2",
		"horas % 2",
		"abs(horas)",
		"horas, 2",
		"1 = 1",
	}

	for _, expr := range malformed {
		t.Run(expr, func(t *testing.T) {
			assert.Error(t, formula.Validate(expr))
			assert.True(t, formula.Evaluate(expr, vars("50", "10", "4")).IsZero())
		})
	}
}

func TestParse_UnknownVariable(t *testing.T) {
	_, err := formula.Parse("sueldo * horas")
	assert.ErrorIs(t, err, formula.ErrUnknownVariable)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := formula.Parse("(1 + 2")
	assert.ErrorIs(t, err, formula.ErrSyntax)
}

func TestEval_DivisionByZero(t *testing.T) {
	// GIVEN: A formula dividing by hours
	e, err := formula.Parse("valor_profesor / horas")
	require.NoError(t, err)

	// WHEN: hours is zero
	_, err = e.Eval(vars("50", "10", "0"))

	// THEN: Eval reports it, Evaluate degrades to zero
	assert.ErrorIs(t, err, formula.ErrDivisionByZero)
	assert.True(t, formula.Evaluate("valor_profesor / horas", vars("50", "10", "0")).IsZero())
}

func TestParse_DeepNestingRejected(t *testing.T) {
	expr := ""
	for i := 0; i < 200; i++ {
		expr += "("
	}
	expr += "1"
	for i := 0; i < 200; i++ {
		expr += ")"
	}
	_, err := formula.Parse(expr)
	assert.ErrorIs(t, err, formula.ErrSyntax)
}
