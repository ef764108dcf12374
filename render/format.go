package render

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/payroll"
)

// FormatFixed renders hours and rates: two decimals, no grouping.
func FormatFixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatMoney renders totals with thousands separators: 1234.5 -> "1,234.50".
// The digits come from the decimal itself, so any magnitude prints exactly.
func FormatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatDate renders the issue date as dd/mm/yyyy.
func FormatDate(v payroll.StatementView) string {
	return v.CreatedAt.Format("02/01/2006")
}

var (
	whitespace     = regexp.MustCompile(`\s`)
	pathSeparators = strings.NewReplacer("/", "-", `\`, "-")
)

// FileName is the download and archive entry name of a statement:
// Liquidacion_<teacher>_<month>_<year>_<id>.pdf, whitespace replaced with
// underscores and path separators with dashes.
func FileName(v payroll.StatementView) string {
	name := "Liquidacion_" + v.TeacherName() + "_" + v.Period() + "_" + strconv.FormatInt(v.ID, 10) + ".pdf"
	name = whitespace.ReplaceAllString(name, "_")
	return pathSeparators.Replace(name)
}
