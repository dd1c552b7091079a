package models

import "sort"

// Contest is a finished contest as served by the catalog API.
// Category is derived by the section classifier and is rewritten whenever
// contests are normalized.
type Contest struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	Type             string `json:"type,omitempty"`
	StartTimeSeconds *int64 `json:"startTimeSeconds,omitempty"`
	DurationSeconds  *int64 `json:"durationSeconds,omitempty"`
	Category         string `json:"category"`
}

// PhaseFinished is the only phase that enters a section.
const PhaseFinished = "FINISHED"

// StartTime returns the start timestamp, or 0 when it is unknown.
func (c Contest) StartTime() int64 {
	if c.StartTimeSeconds == nil {
		return 0
	}
	return *c.StartTimeSeconds
}

// SortByStartDesc orders contests most recent first. Contests without a
// start time sort as if it were 0.
func SortByStartDesc(contests []Contest) {
	sort.SliceStable(contests, func(i, j int) bool {
		return contests[i].StartTime() > contests[j].StartTime()
	})
}

// ContestIDs returns the ids of contests in order.
func ContestIDs(contests []Contest) []int {
	ids := make([]int, 0, len(contests))
	for _, c := range contests {
		ids = append(ids, c.ID)
	}
	return ids
}

// DefaultPageSize is the number of contests shown per dashboard page.
const DefaultPageSize = 15

// Page returns the 1-based page of contests for the given page size.
func Page(contests []Contest, page, size int) []Contest {
	if size <= 0 || page < 1 {
		return nil
	}
	start := (page - 1) * size
	if start >= len(contests) {
		return nil
	}
	end := start + size
	if end > len(contests) {
		end = len(contests)
	}
	return contests[start:end]
}

// TotalPages returns the number of pages, never less than 1.
func TotalPages(n, size int) int {
	if size <= 0 || n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}
