package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Tier is the match class of a result. Lower tiers rank first.
type Tier int

const (
	TierExact Tier = iota
	TierPrefix
	TierSubstring
)

var tierNames = [...]string{
	TierExact:     "exact",
	TierPrefix:    "prefix",
	TierSubstring: "substring",
}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	for i, name := range tierNames {
		if name == string(text) {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown tier %q", apperrors.ErrInvalidInput, text)
}

// Match is one ranked result.
type Match struct {
	Entry symbol.Entry
	Tier  Tier
}

// classify reports how key matches the normalised query q.
func classify(key, q string) (Tier, bool) {
	switch {
	case key == q:
		return TierExact, true
	case strings.HasPrefix(key, q):
		return TierPrefix, true
	case strings.Contains(key, q):
		return TierSubstring, true
	}
	return 0, false
}

// collect appends the entries of p that match q. When substringOnly is set the
// exact and prefix tiers are skipped; a key in another bucket cannot start
// with q.
func collect(dst []Match, p *symbol.Partition, q string, substringOnly bool) []Match {
	for _, e := range p.Entries {
		tier, ok := classify(e.Key, q)
		if !ok || (substringOnly && tier != TierSubstring) {
			continue
		}
		dst = append(dst, Match{Entry: e, Tier: tier})
	}
	return dst
}

// rank orders matches by tier, then key length in runes, then key.
func rank(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if la, lb := utf8.RuneCountInString(a.Entry.Key), utf8.RuneCountInString(b.Entry.Key); la != lb {
			return la < lb
		}
		return a.Entry.Key < b.Entry.Key
	})
}
