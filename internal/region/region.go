// Package region tags tickets with a support region.
package region

import (
	"fmt"
	"os"
	"strings"

	"github.com/psds-microservice/ticket-bridge/internal/model"
	"gopkg.in/yaml.v3"
)

// Input is what a classifier may look at.
type Input struct {
	ChannelName string
	RoleNames   []string
}

type Classifier interface {
	// Classify returns the detected region and true, or false when nothing matched.
	Classify(in Input) (model.Region, bool)
}

type Rule struct {
	Region   model.Region `yaml:"region"`
	Keywords []string     `yaml:"keywords"`
}

// Rules is the layout of REGION_RULES_FILE.
type Rules struct {
	Strategy string `yaml:"strategy"`
	Rules    []Rule `yaml:"rules"`
}

// DefaultRules matches "eu" before "asia", first hit wins.
func DefaultRules() []Rule {
	return []Rule{
		{Region: model.RegionEU, Keywords: []string{"eu"}},
		{Region: model.RegionASIA, Keywords: []string{"asia"}},
	}
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read region rules %s: %w", path, err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse region rules %s: %w", path, err)
	}
	for i, r := range rules.Rules {
		reg, ok := model.ParseRegion(string(r.Region))
		if !ok {
			return Rules{}, fmt.Errorf("region rules %s: rule %d: unknown region %q", path, i, r.Region)
		}
		rules.Rules[i].Region = reg
		if len(r.Keywords) == 0 {
			return Rules{}, fmt.Errorf("region rules %s: rule %d: no keywords", path, i)
		}
	}
	return rules, nil
}

type matcher struct {
	rules []Rule
}

func newMatcher(rules []Rule) matcher {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		out = append(out, Rule{Region: r.Region, Keywords: kw})
	}
	return matcher{rules: out}
}

func (m matcher) match(s string) (model.Region, bool) {
	s = strings.ToLower(s)
	for _, r := range m.rules {
		for _, k := range r.Keywords {
			if strings.Contains(s, k) {
				return r.Region, true
			}
		}
	}
	return "", false
}

// Name classifies by substring match on the channel name.
type Name struct{ m matcher }

func ByName(rules []Rule) *Name { return &Name{m: newMatcher(rules)} }

func (n *Name) Classify(in Input) (model.Region, bool) {
	return n.m.match(in.ChannelName)
}

// Mention classifies by the names of roles mentioned in the message.
type Mention struct{ m matcher }

func ByMention(rules []Rule) *Mention { return &Mention{m: newMatcher(rules)} }

func (c *Mention) Classify(in Input) (model.Region, bool) {
	for _, name := range in.RoleNames {
		if r, ok := c.m.match(name); ok {
			return r, true
		}
	}
	return "", false
}

// Chain returns the first match of its classifiers.
type Chain []Classifier

func (c Chain) Classify(in Input) (model.Region, bool) {
	for _, cl := range c {
		if r, ok := cl.Classify(in); ok {
			return r, true
		}
	}
	return "", false
}

// UsesRoles reports whether c looks at role names, so callers can skip
// resolving them when it does not.
func UsesRoles(c Classifier) bool {
	switch v := c.(type) {
	case *Mention:
		return true
	case Chain:
		for _, cl := range v {
			if UsesRoles(cl) {
				return true
			}
		}
	}
	return false
}

// New builds the classifier for a strategy: "name", "mention" or a comma
// separated chain of both.
func New(strategy string, rules []Rule) (Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	var chain Chain
	for _, part := range strings.Split(strategy, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "name":
			chain = append(chain, ByName(rules))
		case "mention":
			chain = append(chain, ByMention(rules))
		default:
			return nil, fmt.Errorf("region: unsupported strategy %q", strategy)
		}
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

// FromConfig builds the classifier from REGION_STRATEGY and the optional rules
// file. A strategy set in the file wins over the environment.
func FromConfig(strategy, rulesFile string) (Classifier, error) {
	var rules []Rule
	if rulesFile != "" {
		loaded, err := LoadRules(rulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded.Rules
		if loaded.Strategy != "" {
			strategy = loaded.Strategy
		}
	}
	return New(strategy, rules)
}
