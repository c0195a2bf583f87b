// Package match selects exactly one DICOM series per pattern.
//
// The exactly-one invariant is deliberate: an ambiguous match is never
// resolved by picking a default, because sending the wrong series
// through a clinical pipeline is silent corruption, not a recoverable
// fallback.
package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Project-Laminate/flairstar/internal/core/rule"
	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Select returns the single candidate satisfying every rule of the
// pattern. Zero or multiple matches return ErrMatch.
func Select(p domain.Pattern, candidates []domain.SeriesDescriptor) (domain.SeriesDescriptor, error) {
	compiled, err := rule.CompilePattern(p)
	if err != nil {
		return domain.SeriesDescriptor{}, err
	}

	var matched []domain.SeriesDescriptor
	for _, candidate := range candidates {
		if matchesAll(compiled, candidate) {
			matched = append(matched, candidate)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return domain.SeriesDescriptor{}, fmt.Errorf(
			"%w: no series matches pattern %q among %d candidates",
			domain.ErrMatch, p.Name, len(candidates))
	default:
		return domain.SeriesDescriptor{}, fmt.Errorf(
			"%w: pattern %q is ambiguous, %d series match: %s",
			domain.ErrMatch, p.Name, len(matched), uidList(matched))
	}
}

// SelectByUID looks up a series by its SeriesInstanceUID, bypassing
// pattern evaluation entirely.
func SelectByUID(uid string, candidates []domain.SeriesDescriptor) (domain.SeriesDescriptor, error) {
	for _, candidate := range candidates {
		if candidate.SeriesInstanceUID == uid {
			return candidate, nil
		}
	}
	return domain.SeriesDescriptor{}, fmt.Errorf(
		"%w: series %q not found among %d candidates", domain.ErrMatch, uid, len(candidates))
}

func matchesAll(compiled []*rule.Compiled, s domain.SeriesDescriptor) bool {
	for _, c := range compiled {
		if !c.Evaluate(s) {
			return false
		}
	}
	return true
}

func uidList(matched []domain.SeriesDescriptor) string {
	uids := make([]string, len(matched))
	for i, m := range matched {
		uids[i] = m.SeriesInstanceUID
	}
	sort.Strings(uids)
	return strings.Join(uids, ", ")
}
