// Package watchlist normalizes the configured symbol universe before a
// scan fans out.
package watchlist

import "strings"

// Watchlist is an ordered, deduplicated, uppercased symbol list.
type Watchlist struct {
	symbols []string
}

// Normalize trims whitespace, uppercases, drops empty entries, and
// removes duplicates while preserving first-seen order.
func Normalize(symbols []string) Watchlist {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return Watchlist{symbols: out}
}

// Symbols returns the normalized symbols in first-seen order. The
// returned slice is a copy; callers may mutate it freely.
func (w Watchlist) Symbols() []string {
	out := make([]string, len(w.symbols))
	copy(out, w.symbols)
	return out
}

// Len returns the number of symbols.
func (w Watchlist) Len() int { return len(w.symbols) }

// Empty reports whether the watchlist has no symbols.
func (w Watchlist) Empty() bool { return len(w.symbols) == 0 }
