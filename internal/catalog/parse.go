package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

var errInvalidJSON = errors.New("invalid json")

// ParseCategories flattens a by-category document into one contest list.
// Known categories come first in section order, unknown ones follow sorted
// by code and are tagged as Others. Entries without a usable id are skipped.
func ParseCategories(body []byte) ([]models.Contest, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}

	doc := gjson.ParseBytes(body)
	if ok := doc.Get("success"); ok.Exists() && !ok.Bool() {
		return nil, ErrAPIFailure
	}

	categories := doc.Get("categories")
	if !categories.IsObject() {
		return []models.Contest{}, nil
	}

	groups := make(map[string]gjson.Result)
	var unknown []string
	categories.ForEach(func(code, list gjson.Result) bool {
		key := strings.ToUpper(strings.TrimSpace(code.String()))
		if _, seen := groups[key]; !seen && !isKnownCode(key) {
			unknown = append(unknown, key)
		}
		groups[key] = list
		return true
	})
	sort.Strings(unknown)

	codes := append(sections.CategoryCodes(), unknown...)
	contests := make([]models.Contest, 0)
	for _, code := range codes {
		list, ok := groups[code]
		if !ok || !list.IsArray() {
			continue
		}
		section := sections.FromCategoryCode(code)
		for _, item := range list.Array() {
			c, ok := parseContest(item)
			if !ok {
				continue
			}
			c.Category = section
			contests = append(contests, c)
		}
	}

	return contests, nil
}

func isKnownCode(code string) bool {
	for _, known := range sections.CategoryCodes() {
		if code == known {
			return true
		}
	}
	return false
}

func parseContest(item gjson.Result) (models.Contest, bool) {
	id := item.Get("id").Int()
	if id <= 0 {
		return models.Contest{}, false
	}

	c := models.Contest{
		ID:    int(id),
		Name:  strings.TrimSpace(item.Get("name").String()),
		Phase: strings.TrimSpace(item.Get("phase").String()),
		Type:  item.Get("type").String(),
	}
	if c.Name == "" {
		c.Name = "Unknown"
	}
	if c.Phase == "" {
		c.Phase = models.PhaseFinished
	}
	if v := item.Get("startTimeSeconds"); v.Exists() && v.Type != gjson.Null {
		n := v.Int()
		c.StartTimeSeconds = &n
	}
	if v := item.Get("durationSeconds"); v.Exists() && v.Type != gjson.Null {
		n := v.Int()
		c.DurationSeconds = &n
	}

	return c, true
}

// ParseProblems reads the problem list of a contest detail document. Both
// {contest:{problems:[...]}} and {problems:[...]} are accepted. A missing
// contestId falls back to the requested one.
func ParseProblems(body []byte, contestID int) ([]models.Problem, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}

	doc := gjson.ParseBytes(body)
	if ok := doc.Get("success"); ok.Exists() && !ok.Bool() {
		return nil, ErrAPIFailure
	}

	list := doc.Get("contest.problems")
	if !list.IsArray() {
		list = doc.Get("problems")
	}

	problems := make([]models.Problem, 0)
	if !list.IsArray() {
		return problems, nil
	}

	for _, item := range list.Array() {
		index := models.NormalizeIndex(item.Get("index").String())
		if index == "" {
			continue
		}

		p := models.Problem{
			ContestID: int(item.Get("contestId").Int()),
			Index:     index,
			Name:      item.Get("name").String(),
		}
		if p.ContestID <= 0 {
			p.ContestID = contestID
		}
		if v := item.Get("points"); v.Exists() && v.Type == gjson.Number {
			f := v.Float()
			p.Points = &f
		}
		if v := item.Get("rating"); v.Exists() && v.Type == gjson.Number {
			r := int(v.Int())
			p.Rating = &r
		}

		problems = append(problems, p)
	}

	return problems, nil
}
