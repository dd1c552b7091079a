// Package sections classifies contests into the fixed set of dashboard
// sections and filters out unofficial contests.
package sections

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// Section names, in display order.
const (
	Div1And2    = "Div 1+2"
	Div1        = "Div. 1"
	Div2        = "Div. 2"
	Div3        = "Div. 3"
	Div4        = "Div. 4"
	Educational = "Educational"
	Global      = "Global"
	Others      = "Others"
)

// Default is the section shown when nothing else was selected.
const Default = Div1And2

var all = []string{Div1And2, Div1, Div2, Div3, Div4, Educational, Global, Others}

// All returns the section names in their fixed order.
func All() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

// categoryCodes maps catalog API category codes to section names.
var categoryCodes = map[string]string{
	"DIV1_DIV2":   Div1And2,
	"DIV1":        Div1,
	"DIV2":        Div2,
	"DIV3":        Div3,
	"DIV4":        Div4,
	"GLOBAL":      Global,
	"EDUCATIONAL": Educational,
	"OTHERS":      Others,
}

// CategoryCodes returns the catalog category codes in section order.
func CategoryCodes() []string {
	return []string{"DIV1_DIV2", "DIV1", "DIV2", "DIV3", "DIV4", "GLOBAL", "EDUCATIONAL", "OTHERS"}
}

// FromCategoryCode translates a catalog category code. Unknown codes map to Others.
func FromCategoryCode(code string) string {
	if name, ok := categoryCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return Others
}

var whitespace = regexp.MustCompile(`\s+`)

// Key returns the storage key of a section: whitespace runs become "_" and
// the result is lower-cased ("Div. 2" -> "div._2").
func Key(section string) string {
	return strings.ToLower(whitespace.ReplaceAllString(section, "_"))
}

// Lookup resolves a section by name or by key.
func Lookup(s string) (string, bool) {
	for _, name := range all {
		if s == name || s == Key(name) || strings.EqualFold(s, name) {
			return name, true
		}
	}
	return "", false
}

// ErrUnknown is returned for a name outside the fixed set of sections.
var ErrUnknown = errors.New("unknown section")

// Resolve is Lookup with an error for unknown names.
func Resolve(s string) (string, error) {
	if name, ok := Lookup(s); ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

var (
	reDiv1      = regexp.MustCompile(`(?i)Div\.?\s*1\b`)
	reDiv2      = regexp.MustCompile(`(?i)Div\.?\s*2\b`)
	reDiv3      = regexp.MustCompile(`(?i)Div\.?\s*3\b`)
	reDiv4      = regexp.MustCompile(`(?i)Div\.?\s*4\b`)
	reJoined    = regexp.MustCompile(`(?i)Div\.?\s*1.*(\+|\band\b|&|/).*Div\.?\s*2`)
	reShortJoin = regexp.MustCompile(`(?i)Div\.?\s*1\s*(\+|&|/|\band\b)\s*2\b`)
	reEdu       = regexp.MustCompile(`(?i)Educational`)
	reGlobal    = regexp.MustCompile(`(?i)Global`)

	reGym      = regexp.MustCompile(`(?i)\bgym\b`)
	reTraining = regexp.MustCompile(`(?i)training`)
	reSguru    = regexp.MustCompile(`(?i)acmsguru`)
	reTechno   = regexp.MustCompile(`(?i)технокубок`)
)

// IsOfficial reports whether a contest belongs on the dashboard at all.
// Gym, training, acm.sgu.ru archive and Technocup mirror contests are excluded.
func IsOfficial(c models.Contest) bool {
	if strings.EqualFold(strings.TrimSpace(c.Type), "gym") {
		return false
	}
	for _, re := range []*regexp.Regexp{reGym, reTraining, reSguru, reTechno} {
		if re.MatchString(c.Name) {
			return false
		}
	}
	return true
}

// IsCombined reports whether a contest is a joint Division 1 and 2 round.
// An explicit join ("Div. 1 + Div. 2", "Div 1+2", "Div. 1 and 2") or the
// presence of both division markers makes a round combined.
func IsCombined(c models.Contest) bool {
	name := c.Name
	if reJoined.MatchString(name) || reShortJoin.MatchString(name) {
		return true
	}
	return reDiv1.MatchString(name) && reDiv2.MatchString(name)
}

// Classify returns the single section a contest belongs to. The checks run in
// a fixed order and the first match wins, so the result is a partition.
// The pre-supplied category only counts for the Educational and Global checks.
func Classify(c models.Contest) string {
	name := c.Name
	switch {
	case IsCombined(c):
		return Div1And2
	case reDiv1.MatchString(name):
		return Div1
	case reDiv2.MatchString(name):
		return Div2
	case reDiv3.MatchString(name):
		return Div3
	case reDiv4.MatchString(name):
		return Div4
	case reEdu.MatchString(name) || reEdu.MatchString(c.Category):
		return Educational
	case reGlobal.MatchString(name) || reGlobal.MatchString(c.Category):
		return Global
	default:
		return Others
	}
}

// Matches reports whether a contest belongs to section.
func Matches(c models.Contest, section string) bool {
	return Classify(c) == section
}

// Normalize drops unfinished and unofficial contests and recomputes the
// category of the rest. The input slice is not modified.
func Normalize(contests []models.Contest) []models.Contest {
	out := make([]models.Contest, 0, len(contests))
	for _, c := range contests {
		if c.Phase == "" {
			c.Phase = models.PhaseFinished
		}
		if c.Phase != models.PhaseFinished || !IsOfficial(c) {
			continue
		}
		if strings.TrimSpace(c.Name) == "" {
			c.Name = "Unknown"
		}
		c.Category = Classify(c)
		out = append(out, c)
	}
	return out
}

// Filter returns the normalized contests of one section, most recent first.
func Filter(contests []models.Contest, section string) []models.Contest {
	out := make([]models.Contest, 0)
	for _, c := range Normalize(contests) {
		if c.Category == section {
			out = append(out, c)
		}
	}
	models.SortByStartDesc(out)
	return out
}
