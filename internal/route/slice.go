// Package route resolves a train's station route and cuts the requested journey out of it.
package route

import (
	"fmt"
	"strings"
)

// previewLen bounds the station codes echoed back in diagnostics.
const previewLen = 10

// Route is an ordered list of unique station codes in travel order.
type Route []string

// SliceError reports that the requested journey does not fit the route.
type SliceError struct {
	Missing   string   // code not on the route, "" when the order is wrong
	Source    string
	Dest      string
	Available []string // bounded preview of the route
	Total     int
}

func (e *SliceError) Error() string {
	if e.Missing != "" {
		msg := fmt.Sprintf("station %s is not on this train's route; route starts %s", e.Missing, strings.Join(e.Available, ", "))
		if e.Total > len(e.Available) {
			msg += fmt.Sprintf(" (+%d more)", e.Total-len(e.Available))
		}
		return msg
	}
	return fmt.Sprintf("destination %s precedes source %s on this train's route", e.Dest, e.Source)
}

// NormalizeCode uppercases and trims a station code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Slice returns the inclusive sub-route from source to destination, re-indexed from 0.
// The result is a copy; full is not modified.
func Slice(full Route, source, destination string) (Route, error) {
	src := NormalizeCode(source)
	dst := NormalizeCode(destination)

	srcIdx, dstIdx := full.Index(src), full.Index(dst)
	for _, missing := range []struct {
		code string
		idx  int
	}{{src, srcIdx}, {dst, dstIdx}} {
		if missing.idx < 0 {
			return nil, &SliceError{
				Missing:   missing.code,
				Source:    src,
				Dest:      dst,
				Available: full.Preview(previewLen),
				Total:     len(full),
			}
		}
	}
	if dstIdx < srcIdx {
		return nil, &SliceError{Source: src, Dest: dst}
	}

	out := make(Route, dstIdx-srcIdx+1)
	copy(out, full[srcIdx:dstIdx+1])
	return out, nil
}

// Index returns the position of code, or -1.
func (r Route) Index(code string) int {
	for i, c := range r {
		if c == code {
			return i
		}
	}
	return -1
}

// Preview returns at most n leading codes.
func (r Route) Preview(n int) []string {
	if len(r) < n {
		n = len(r)
	}
	out := make([]string, n)
	copy(out, r[:n])
	return out
}

// normalize uppercases and trims codes, drops blanks and repeats, keeping first occurrence.
func normalize(codes []string) Route {
	seen := make(map[string]struct{}, len(codes))
	out := make(Route, 0, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
