package sections

import (
	"errors"
	"testing"

	"github.com/terra-clan/ladder-cache/internal/models"
)

func contest(name string) models.Contest {
	return models.Contest{ID: 1, Name: name, Phase: models.PhaseFinished, Type: "CF"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Codeforces Round 999 (Div. 2)", Div2},
		{"Codeforces Round 900 (Div. 1)", Div1},
		{"Codeforces Round 901 (Div. 1 + Div. 2)", Div1And2},
		{"Codeforces Round 902 (Div 1+2)", Div1And2},
		{"Codeforces Round 903 (Div. 1 and Div. 2)", Div1And2},
		{"Codeforces Round 904 (Div. 1 & 2)", Div1And2},
		{"Codeforces Round 905 (Div. 1/2)", Div1And2},
		{"Codeforces Round 906, Div. 1, Div. 2 based on Olympiad", Div1And2},
		{"Codeforces Round 907 (Div. 3)", Div3},
		{"Codeforces Round 908 (Div. 4)", Div4},
		{"Educational Codeforces Round 160", Educational},
		{"Codeforces Global Round 25", Global},
		{"Kotlin Heroes: Episode 10", Others},
		{"Codeforces Round 909 (Div. 12)", Others},
		// Division markers take priority over the Educational check.
		{"Educational Codeforces Round 161 (Rated for Div. 2)", Div2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(contest(tt.name)); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestClassifyUsesCategoryHint(t *testing.T) {
	c := contest("Pinely Round 3")
	c.Category = "Global"
	if got := Classify(c); got != Global {
		t.Errorf("expected Global from category hint, got %q", got)
	}

	c.Category = "Educational"
	if got := Classify(c); got != Educational {
		t.Errorf("expected Educational from category hint, got %q", got)
	}
}

func TestClassifyIsPartition(t *testing.T) {
	names := []string{
		"Codeforces Round 1 (Div. 1)",
		"Codeforces Round 2 (Div. 2)",
		"Codeforces Round 3 (Div. 1 + Div. 2)",
		"Codeforces Round 4 (Div. 1, Div. 2)",
		"Codeforces Round 5 (Div. 3)",
		"Codeforces Round 6 (Div. 4)",
		"Educational Round 7",
		"Global Round 8",
		"April Fools Day Contest",
	}

	for _, name := range names {
		c := contest(name)
		matched := 0
		for _, s := range All() {
			if Matches(c, s) {
				matched++
			}
		}
		if matched != 1 {
			t.Errorf("%q matched %d sections, want exactly 1", name, matched)
		}
		if Matches(c, Div1And2) && (Matches(c, Div1) || Matches(c, Div2)) {
			t.Errorf("%q matched a combined and a plain division section", name)
		}
	}
}

func TestIsOfficial(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		want bool
	}{
		{"Codeforces Round 999 (Div. 2)", "CF", true},
		{"Codeforces Beta Round (Div. 2) training", "CF", false},
		{"2019 ICPC Gym Contest", "ICPC", false},
		{"Some Contest", "GYM", false},
		{"acmsguru archive", "ICPC", false},
		{"Технокубок 2021 - Финал", "CF", false},
		{"ТЕХНОКУБОК 2020 - Отборочный Раунд 1", "CF", false},
		{"Gymnastics Cup", "CF", true},
	}

	for _, tt := range tests {
		c := contest(tt.name)
		c.Type = tt.typ
		if got := IsOfficial(c); got != tt.want {
			t.Errorf("IsOfficial(%q, %q) = %v, want %v", tt.name, tt.typ, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := []models.Contest{
		{ID: 1, Name: "Codeforces Round 1 (Div. 2)", Phase: "FINISHED"},
		{ID: 2, Name: "Codeforces Round 2 (Div. 2)", Phase: "BEFORE"},
		{ID: 3, Name: "Codeforces Round 3 (Div. 2) training", Phase: "FINISHED"},
		{ID: 4, Name: "Codeforces Round 4 (Div. 3)"},
		{ID: 5, Name: "", Phase: "FINISHED"},
	}

	out := Normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 contests, got %d", len(out))
	}
	if out[0].Category != Div2 {
		t.Errorf("expected category %q, got %q", Div2, out[0].Category)
	}
	if out[1].Phase != models.PhaseFinished || out[1].Category != Div3 {
		t.Errorf("unexpected contest: %+v", out[1])
	}
	if out[2].Name != "Unknown" || out[2].Category != Others {
		t.Errorf("unexpected contest: %+v", out[2])
	}
	if in[0].Category != "" {
		t.Error("Normalize must not modify its input")
	}
}

func TestFilterSortsByStartTime(t *testing.T) {
	ts := func(v int64) *int64 { return &v }
	in := []models.Contest{
		{ID: 1, Name: "Round 1 (Div. 2)", StartTimeSeconds: ts(100)},
		{ID: 2, Name: "Round 2 (Div. 2)", StartTimeSeconds: ts(300)},
		{ID: 3, Name: "Round 3 (Div. 2)"},
		{ID: 4, Name: "Round 4 (Div. 2)", StartTimeSeconds: ts(200)},
		{ID: 5, Name: "Round 5 (Div. 1)", StartTimeSeconds: ts(500)},
	}

	out := Filter(in, Div2)
	want := []int{2, 4, 1, 3}
	if len(out) != len(want) {
		t.Fatalf("expected %d contests, got %d", len(want), len(out))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Errorf("position %d: expected contest %d, got %d", i, id, out[i].ID)
		}
	}
}

func TestKeyAndLookup(t *testing.T) {
	if got := Key("Div 1+2"); got != "div_1+2" {
		t.Errorf("Key(Div 1+2) = %q", got)
	}
	if got := Key("Div. 2"); got != "div._2" {
		t.Errorf("Key(Div. 2) = %q", got)
	}

	for _, s := range All() {
		name, ok := Lookup(Key(s))
		if !ok || name != s {
			t.Errorf("Lookup(%q) = %q, %v", Key(s), name, ok)
		}
	}
	if _, ok := Lookup("div. 9"); ok {
		t.Error("expected unknown section to fail lookup")
	}
}

func TestFromCategoryCode(t *testing.T) {
	if got := FromCategoryCode("DIV1_DIV2"); got != Div1And2 {
		t.Errorf("got %q", got)
	}
	if got := FromCategoryCode("educational"); got != Educational {
		t.Errorf("got %q", got)
	}
	if got := FromCategoryCode("SOMETHING_NEW"); got != Others {
		t.Errorf("got %q", got)
	}
}

func TestResolve(t *testing.T) {
	name, err := Resolve("div._3")
	if err != nil || name != Div3 {
		t.Errorf("Resolve(div._3) = %q, %v", name, err)
	}
	if _, err := Resolve("Div. 5"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Resolve(Div. 5) error = %v, want ErrUnknown", err)
	}
}
