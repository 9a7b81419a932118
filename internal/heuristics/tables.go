// Package heuristics holds the tunable keyword tables and score constants used
// to judge candidate sources. The tables are data, loaded from YAML, so weights
// can be changed without touching the scoring code.
package heuristics

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// WeightedTerm is a keyword and the points a match contributes.
type WeightedTerm struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

// Terms is a list of weighted keywords.
type Terms []WeightedTerm

// Score sums the weight of every term contained in text and returns the
// matched terms. text must already be normalized.
func (ts Terms) Score(text string) (float64, []string) {
	var total float64
	var hits []string
	for _, t := range ts {
		if t.Term != "" && strings.Contains(text, t.Term) {
			total += t.Weight
			hits = append(hits, t.Term)
		}
	}
	return total, hits
}

// DomainSuffix scores a host ending. URLBonus is added to the URL score;
// LocationScore stands in for a declared location when none was given.
type DomainSuffix struct {
	Suffix        string  `yaml:"suffix"`
	URLBonus      float64 `yaml:"url_bonus"`
	LocationScore float64 `yaml:"location_score"`
}

// NameTable scores business names.
type NameTable struct {
	Terms    Terms `yaml:"terms"`
	Negative Terms `yaml:"negative"`
}

// URLTable scores host and path keywords.
type URLTable struct {
	Terms Terms `yaml:"terms"`
}

// LocationTable scores declared locations.
type LocationTable struct {
	Cities       []string `yaml:"cities"`
	CityScore    float64  `yaml:"city_score"`
	ScriptScore  float64  `yaml:"script_score"`
	OtherScore   float64  `yaml:"other_score"`
	NeutralScore float64  `yaml:"neutral_score"`
}

// TagRule assigns Label when any of Terms matches. Rules seed the pattern store.
type TagRule struct {
	Label string   `yaml:"label"`
	Terms []string `yaml:"terms"`
}

// TextQualityTable scores the language quality of a name and location.
type TextQualityTable struct {
	ScriptScore float64 `yaml:"script_score"`
	Terms       Terms   `yaml:"terms"`
}

// Tables is the complete heuristic configuration.
type Tables struct {
	Name        NameTable        `yaml:"name"`
	URL         URLTable         `yaml:"url"`
	Domains     []DomainSuffix   `yaml:"domains"`
	Location    LocationTable    `yaml:"location"`
	Categories  []TagRule        `yaml:"categories"`
	Quality     []TagRule        `yaml:"quality"`
	TextQuality TextQualityTable `yaml:"text_quality"`
}

// Default returns the built-in tables. Each call returns a fresh copy.
func Default() *Tables {
	t, err := parse(defaultYAML, &Tables{})
	if err != nil {
		panic(fmt.Sprintf("heuristics: embedded default.yaml: %v", err))
	}
	return t
}

// Load overlays the YAML file at path on the built-in tables. Sections
// present in the file replace the defaults; absent sections are kept.
// An empty path returns the defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "heuristics: read tables %s", path)
	}

	return parse(data, Default())
}

func parse(data []byte, base *Tables) (*Tables, error) {
	// The YAML has a top-level "heuristics" key
	wrapper := struct {
		Heuristics *Tables `yaml:"heuristics"`
	}{Heuristics: base}

	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "heuristics: parse tables")
	}

	t := wrapper.Heuristics
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// normalize folds every term so matching compares like with like.
func (t *Tables) normalize() {
	foldTerms := func(ts Terms) {
		for i := range ts {
			ts[i].Term = Normalize(ts[i].Term)
		}
	}
	foldTerms(t.Name.Terms)
	foldTerms(t.Name.Negative)
	foldTerms(t.URL.Terms)
	foldTerms(t.TextQuality.Terms)

	for i := range t.Location.Cities {
		t.Location.Cities[i] = Normalize(t.Location.Cities[i])
	}
	for i := range t.Domains {
		t.Domains[i].Suffix = strings.ToLower(strings.TrimSpace(t.Domains[i].Suffix))
	}
	for _, rules := range [][]TagRule{t.Categories, t.Quality} {
		for i := range rules {
			for j := range rules[i].Terms {
				rules[i].Terms[j] = Normalize(rules[i].Terms[j])
			}
		}
	}
}

// Validate checks that the tables are usable.
func (t *Tables) Validate() error {
	var errs []string

	if len(t.Name.Terms) == 0 {
		errs = append(errs, "name.terms must not be empty")
	}
	for _, term := range append(append(Terms{}, t.Name.Terms...), t.URL.Terms...) {
		if term.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("term %q must have a positive weight", term.Term))
		}
	}
	for _, term := range t.Name.Negative {
		if term.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("negative term %q must have a positive weight", term.Term))
		}
	}
	for _, d := range t.Domains {
		if !strings.HasPrefix(d.Suffix, ".") {
			errs = append(errs, fmt.Sprintf("domain suffix %q must start with a dot", d.Suffix))
		}
	}
	l := t.Location
	for name, v := range map[string]float64{
		"city_score": l.CityScore, "script_score": l.ScriptScore,
		"other_score": l.OtherScore, "neutral_score": l.NeutralScore,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("location.%s must be between 0 and 100", name))
		}
	}
	for _, r := range append(append([]TagRule{}, t.Categories...), t.Quality...) {
		if r.Label == "" || len(r.Terms) == 0 {
			errs = append(errs, "tag rules need a label and at least one term")
			break
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("heuristics: invalid tables: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MatchDomain returns the longest configured suffix that host ends with.
func (t *Tables) MatchDomain(host string) (DomainSuffix, bool) {
	host = strings.ToLower(host)
	var best DomainSuffix
	found := false
	for _, d := range t.Domains {
		if strings.HasSuffix(host, d.Suffix) && len(d.Suffix) > len(best.Suffix) {
			best = d
			found = true
		}
	}
	return best, found
}

// MatchCity returns the first known city contained in the normalized location.
func (t *Tables) MatchCity(location string) (string, bool) {
	for _, c := range t.Location.Cities {
		if c != "" && strings.Contains(location, c) {
			return c, true
		}
	}
	return "", false
}
