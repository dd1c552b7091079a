package models

// SectionSnapshot is a section's contest list bundled with the problem lists
// loaded for it, stored as one unit in the structured store.
type SectionSnapshot struct {
	SectionKey          string            `json:"sectionKey"`
	Contests            []Contest         `json:"contests"`
	ProblemsByContestID map[int][]Problem `json:"problemsMap"`
}

// IsEmpty reports whether the snapshot carries no contests.
func (s *SectionSnapshot) IsEmpty() bool {
	return s == nil || len(s.Contests) == 0
}
