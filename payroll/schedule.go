/*
schedule.go - Chronological ordering of line items

PURPOSE:
  Line items carry a free-text schedule like "Lunes 18:30 a 19:30". The
  statement view and the PDF list them by weekday, then start time. Both use
  SortChronologically so the screen and the paper never disagree.

SORT KEY:
  (weekday rank, "HH:MM")
  - weekday: first token, case- and accent-insensitive, lunes=1 .. domingo=7
  - time:    leading H:MM or HH:MM of the second token, zero padded
  Unknown weekday ranks 99; missing or unparsable time is "99:99".
  Empty schedules sort last on both keys. Ties keep their input order.

  The order is never stored; it is recomputed on every read.
*/
package payroll

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	unknownDayRank = 99
	unknownTime    = "99:99"
)

var weekdayRanks = map[string]int{
	"lunes":     1,
	"martes":    2,
	"miercoles": 3,
	"jueves":    4,
	"viernes":   5,
	"sabado":    6,
	"domingo":   7,
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// ScheduleKey returns the sort key of a schedule string.
func ScheduleKey(schedule string) (int, string) {
	parts := strings.Fields(schedule)
	if len(parts) == 0 {
		return unknownDayRank, unknownTime
	}

	rank, ok := weekdayRanks[foldWeekday(parts[0])]
	if !ok {
		rank = unknownDayRank
	}

	clock := unknownTime
	if len(parts) > 1 {
		clock = normalizeClock(parts[1])
	}
	return rank, clock
}

// SortChronologically returns a copy of items ordered by ScheduleKey.
func SortChronologically(items []LineItem) []LineItem {
	type keyed struct {
		rank  int
		clock string
		item  LineItem
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		rank, clock := ScheduleKey(it.Schedule)
		ks[i] = keyed{rank: rank, clock: clock, item: it}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].rank != ks[j].rank {
			return ks[i].rank < ks[j].rank
		}
		return ks[i].clock < ks[j].clock
	})

	out := make([]LineItem, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}

// foldWeekday lowercases and strips accents: "Miércoles" -> "miercoles".
func foldWeekday(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

func normalizeClock(token string) string {
	m := clockPattern.FindStringSubmatch(token)
	if m == nil {
		return unknownTime
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return unknownTime
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
