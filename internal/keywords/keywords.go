package keywords

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set holds every phrase list the scout works with. Matching is done on
// lower-cased text, so phrases are normalized to lower case on load.
type Set struct {
	Search            []string `yaml:"search"`
	Buyer             []string `yaml:"buyer"`
	Seller            []string `yaml:"seller"`
	Injection         []string `yaml:"injection"`
	HighRiskInjection []string `yaml:"high_risk_injection"`
	SelfPromotion     []string `yaml:"self_promotion"`
}

func Default() Set {
	return Set{
		Search:            clone(defaultSearch),
		Buyer:             clone(defaultBuyer),
		Seller:            clone(defaultSeller),
		Injection:         clone(defaultInjection),
		HighRiskInjection: clone(defaultHighRisk),
		SelfPromotion:     clone(defaultSelfPromotion),
	}
}

// Load reads a YAML phrase file. Lists left out of the file keep their
// built-in defaults.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read keywords: %w", err)
	}
	var fromFile Set
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Set{}, fmt.Errorf("parse keywords yaml: %w", err)
	}

	set := Default()
	merge(&set.Search, fromFile.Search)
	merge(&set.Buyer, fromFile.Buyer)
	merge(&set.Seller, fromFile.Seller)
	merge(&set.Injection, fromFile.Injection)
	merge(&set.HighRiskInjection, fromFile.HighRiskInjection)
	merge(&set.SelfPromotion, fromFile.SelfPromotion)
	return set, nil
}

// Matches returns the phrases of list contained in text, in list order.
// Each phrase is reported at most once.
func Matches(text string, list []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range list {
		if phrase != "" && strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}

// ContainsAny reports whether text contains at least one phrase of list.
func ContainsAny(text string, list []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range list {
		if phrase != "" && strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func merge(dst *[]string, src []string) {
	normalized := normalize(src)
	if len(normalized) == 0 {
		return
	}
	*dst = normalized
}

func normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, phrase := range list {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func clone(list []string) []string {
	return append([]string(nil), list...)
}
