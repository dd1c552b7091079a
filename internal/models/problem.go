package models

import (
	"fmt"
	"strings"
)

// Problem is one problem of a contest. It is a value object copied freely
// between cache tiers.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Points    *float64 `json:"points,omitempty"`
	Rating    *int     `json:"rating,omitempty"`
}

// ProblemView is a problem with the per-user overlay applied. It is computed
// at read time and is never persisted.
type ProblemView struct {
	Problem
	Solved bool `json:"solved"`
	Failed bool `json:"failed"`
}

// NormalizeIndex returns the canonical (trimmed, upper-case) problem index.
func NormalizeIndex(index string) string {
	return strings.ToUpper(strings.TrimSpace(index))
}

// ProblemKey identifies a problem across contests, e.g. "1850-A".
func ProblemKey(contestID int, index string) string {
	return fmt.Sprintf("%d-%s", contestID, NormalizeIndex(index))
}

// Key returns the canonical key of the problem.
func (p Problem) Key() string {
	return ProblemKey(p.ContestID, p.Index)
}

// Overlay marks problems as solved or failed. A problem is failed when it was
// attempted and not solved.
func Overlay(problems []Problem, solved, attempted map[string]bool) []ProblemView {
	out := make([]ProblemView, 0, len(problems))
	for _, p := range problems {
		key := p.Key()
		s := solved[key]
		out = append(out, ProblemView{
			Problem: p,
			Solved:  s,
			Failed:  attempted[key] && !s,
		})
	}
	return out
}

// KeySet builds a lookup set from problem keys, normalizing each one.
func KeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		id, index, ok := strings.Cut(k, "-")
		if !ok {
			continue
		}
		set[strings.TrimSpace(id)+"-"+NormalizeIndex(index)] = true
	}
	return set
}
