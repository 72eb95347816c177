// Package availability turns upstream booking status text into a bookable/not-bookable verdict.
package availability

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Kind is the canonical class of an upstream status string.
type Kind string

const (
	KindAvailable     Kind = "AVAILABLE"
	KindConfirmed     Kind = "CONFIRMED"
	KindRAC           Kind = "RAC"
	KindWaitlist      Kind = "WAITLIST"
	KindNotAvailable  Kind = "NOT_AVAILABLE"
	KindRegret        Kind = "REGRET"
	KindDeparted      Kind = "DEPARTED"
	KindChartPrepared Kind = "CHART_PREPARED"
	KindCancelled     Kind = "CANCELLED"
	KindSoldOut       Kind = "SOLD_OUT"
	KindNoData        Kind = "NO_DATA"
)

// NoData is the status reported for empty or unrecognised input.
const NoData = "NO_DATA_IN_RESPONSE"

// maxStatusLen bounds the status text returned to callers.
const maxStatusLen = 64

// Verdict is the classification of one status string.
type Verdict struct {
	Available bool
	Kind      Kind
	Status    string
}

// Term is one row of the upstream vocabulary. Rows are matched in order,
// first substring hit wins.
type Term struct {
	Match     string
	Kind      Kind
	Available bool
}

var vocabulary = []Term{
	{Match: "NOT AVAILABLE", Kind: KindNotAvailable},
	{Match: "AVAILABLE", Kind: KindAvailable, Available: true},
	{Match: "AVBL", Kind: KindAvailable, Available: true},
	{Match: "CNF", Kind: KindConfirmed, Available: true},
	{Match: "CONFIRM", Kind: KindConfirmed, Available: true},
	{Match: "RAC", Kind: KindRAC, Available: true},
	{Match: "GNWL", Kind: KindWaitlist},
	{Match: "RLWL", Kind: KindWaitlist},
	{Match: "PQWL", Kind: KindWaitlist},
	{Match: "TQWL", Kind: KindWaitlist},
	{Match: "CKWL", Kind: KindWaitlist},
	{Match: "RSWL", Kind: KindWaitlist},
	{Match: "RQWL", Kind: KindWaitlist},
	{Match: "NPWL", Kind: KindWaitlist},
	{Match: "WL", Kind: KindWaitlist},
	{Match: "REGRET", Kind: KindRegret},
	{Match: "TRAIN DEPARTED", Kind: KindDeparted},
	{Match: "CHART PREPARED", Kind: KindChartPrepared},
	{Match: "TRAIN CANCELLED", Kind: KindCancelled},
}

// Vocabulary returns a copy of the ordered status table.
func Vocabulary() []Term {
	out := make([]Term, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// trailing count after AVAILABLE, e.g. "AVAILABLE-0042", "CURR_AVBL-0012", "AVAILABLE--1"
var availableCount = regexp.MustCompile(`(?:AVAILABLE|AVBL)\s*-?\s*(-?\d+)\s*$`)

// Classify maps a raw upstream status to a verdict. It is total: any input,
// including garbage, yields a verdict.
func Classify(raw string) Verdict {
	status := Sanitize(raw)
	if status == "" {
		return Verdict{Kind: KindNoData, Status: NoData}
	}
	upper := strings.ToUpper(status)

	for _, term := range vocabulary {
		if !strings.Contains(upper, term.Match) {
			continue
		}
		if term.Kind == KindAvailable {
			if strings.Contains(upper, "NOT") {
				continue
			}
			if n, ok := trailingCount(upper); ok && n <= 0 {
				return Verdict{Kind: KindSoldOut, Status: status}
			}
		}
		return Verdict{Available: term.Available, Kind: term.Kind, Status: status}
	}

	return Verdict{Kind: KindNoData, Status: NoData}
}

func trailingCount(upper string) (int, bool) {
	m := availableCount.FindStringSubmatch(upper)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// out of range: keep only the sign
		if strings.HasPrefix(m[1], "-") {
			return -1, true
		}
		return 1, true
	}
	return n, true
}

// Sanitize trims, drops control characters and bounds the length of a status string.
func Sanitize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxStatusLen {
		cleaned = string(runes[:maxStatusLen])
	}
	return cleaned
}
