package cascade

import (
	"sort"
	"sync"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// State is the in-memory tier: problems per contest, per-contest loading
// flags and the last resolved contest list of each section. Every mutation
// merges a single key, so concurrent writers converge.
type State struct {
	mu       sync.RWMutex
	problems map[int][]models.Problem
	loading  map[int]bool
	contests map[string][]models.Contest
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		problems: make(map[int][]models.Problem),
		loading:  make(map[int]bool),
		contests: make(map[string][]models.Contest),
	}
}

// Problems returns the problems held for a contest
func (s *State) Problems(contestID int) ([]models.Problem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.problems[contestID]
	return p, ok
}

// HasProblems reports whether a non-empty problem list is held for a contest
func (s *State) HasProblems(contestID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.problems[contestID]) > 0
}

// SetProblems stores the problems of one contest
func (s *State) SetProblems(contestID int, problems []models.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[contestID] = problems
}

// MergeProblems adds entries for contests that have no problems yet.
// Entries already held win.
func (s *State) MergeProblems(problems map[int][]models.Problem) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := 0
	for id, list := range problems {
		if len(s.problems[id]) > 0 || len(list) == 0 {
			continue
		}
		s.problems[id] = list
		merged++
	}
	return merged
}

// ProblemsFor returns the held problems of the given contests
func (s *State) ProblemsFor(ids []int) map[int][]models.Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int][]models.Problem, len(ids))
	for _, id := range ids {
		if p, ok := s.problems[id]; ok {
			out[id] = p
		}
	}
	return out
}

// ResetProblems drops every held problem list and loading flag
func (s *State) ResetProblems() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = make(map[int][]models.Problem)
	s.loading = make(map[int]bool)
}

// SetLoading toggles the loading flag of a contest
func (s *State) SetLoading(contestID int, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loading {
		s.loading[contestID] = true
		return
	}
	delete(s.loading, contestID)
}

// Loading reports whether a contest is being loaded
func (s *State) Loading(contestID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[contestID]
}

// LoadingIDs returns the contests currently being loaded, sorted
func (s *State) LoadingIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.loading))
	for id := range s.loading {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetContests records the resolved contest list of a section
func (s *State) SetContests(section string, contests []models.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[section] = contests
}

// Contests returns the last resolved contest list of a section
func (s *State) Contests(section string) ([]models.Contest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contests[section]
	return c, ok
}

// Sections lists the sections resolved so far, sorted
func (s *State) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.contests))
	for name := range s.contests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
