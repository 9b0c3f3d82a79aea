package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	fileMode = 0600

	// Category weights are a regulated business contract and must sum to
	// exactly 100, within this tolerance.
	weightSumTarget    = 100.0
	weightSumTolerance = 0.1

	DirectionHigherIsBetter = "higher_is_better"
	DirectionLowerIsBetter  = "lower_is_better"
)

// ErrInvalid marks configuration errors. These are fatal at load time:
// a broken scoring config means a broken business contract, not noise.
var ErrInvalid = errors.New("invalid scoring configuration")

//go:embed defaults/scoring.yaml
var defaultConfig []byte

// Config is the full scoring configuration, loaded once at startup and
// read-only for the process lifetime. Reload requires a restart.
type Config struct {
	Taxonomy Taxonomy `yaml:"taxonomy" json:"taxonomy"`
	Scoring  Scoring  `yaml:"scoring" json:"scoring"`
	Blend    Blend    `yaml:"blend" json:"blend"`
	Anchors  []Anchor `yaml:"anchors" json:"anchors"`
}

// Taxonomy is the ordered classification rule table. Rule order is total
// and fixed: the first matching rule wins.
type Taxonomy struct {
	OneTimeSalaryCap float64 `yaml:"one_time_salary_cap" json:"one_time_salary_cap"`
	Rules            []Rule  `yaml:"rules" json:"rules"`
}

// Rule maps narration keywords/patterns to a category. Direction empty
// means the rule applies to both credits and debits.
type Rule struct {
	Category    string   `yaml:"category" json:"category"`
	Subcategory string   `yaml:"subcategory" json:"subcategory"`
	Direction   string   `yaml:"direction,omitempty" json:"direction,omitempty"`
	Income      bool     `yaml:"income,omitempty" json:"income,omitempty"`
	Expense     bool     `yaml:"expense,omitempty" json:"expense,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Scoring holds the category weight table.
type Scoring struct {
	Categories []ScoreCategory `yaml:"categories" json:"categories"`
}

// ScoreCategory is one weighted rule category. Weight is a percentage of
// the overall rule sub-score.
type ScoreCategory struct {
	Name     string    `yaml:"name" json:"name"`
	Weight   float64   `yaml:"weight" json:"weight"`
	Features []Feature `yaml:"features" json:"features"`
}

// Feature declares normalization bounds for one raw input. Weights are
// relative within the category and need not sum to one.
type Feature struct {
	Name      string  `yaml:"name" json:"name"`
	Weight    float64 `yaml:"weight" json:"weight"`
	Min       float64 `yaml:"min" json:"min"`
	Max       float64 `yaml:"max" json:"max"`
	Direction string  `yaml:"direction" json:"direction"`
}

// Blend configures how the statistical estimate and the rule sub-score
// are combined and bounded.
type Blend struct {
	Alpha    float64 `yaml:"alpha" json:"alpha"`
	ScoreMin float64 `yaml:"score_min" json:"score_min"`
	ScoreMax float64 `yaml:"score_max" json:"score_max"`
}

// Anchor is one control point of the piecewise-linear probability to
// score mapping.
type Anchor struct {
	Probability float64 `yaml:"p" json:"p"`
	Score       float64 `yaml:"score" json:"score"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return parse(defaultConfig)
}

// Load reads and validates a config file. An empty path loads the
// embedded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parse(b)
}

// Save writes the config as YAML, used by `config init` to materialize
// the embedded defaults for editing.
func Save(path string, c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

func parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate fails fast on any broken invariant. Nothing is silently
// renormalized or defaulted at runtime.
func (c *Config) Validate() error {
	if err := c.Taxonomy.validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Blend.Validate(); err != nil {
		return err
	}
	return ValidateAnchors(c.Anchors)
}

func (t Taxonomy) validate() error {
	if t.OneTimeSalaryCap <= 0 {
		return fmt.Errorf("%w: one_time_salary_cap must be positive, got %f", ErrInvalid, t.OneTimeSalaryCap)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("%w: taxonomy has no rules", ErrInvalid)
	}
	for i, r := range t.Rules {
		if r.Category == "" || r.Subcategory == "" {
			return fmt.Errorf("%w: rule %d is missing category or subcategory", ErrInvalid, i)
		}
		if r.Income && r.Expense {
			return fmt.Errorf("%w: rule %s/%s marked both income and expense", ErrInvalid, r.Category, r.Subcategory)
		}
		if r.Direction != "" && r.Direction != "CREDIT" && r.Direction != "DEBIT" {
			return fmt.Errorf("%w: rule %s/%s has unknown direction %q", ErrInvalid, r.Category, r.Subcategory, r.Direction)
		}
		if len(r.Keywords) == 0 && len(r.Patterns) == 0 {
			return fmt.Errorf("%w: rule %s/%s has no keywords or patterns", ErrInvalid, r.Category, r.Subcategory)
		}
		seen := make(map[string]bool, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				return fmt.Errorf("%w: rule %s/%s has an empty keyword", ErrInvalid, r.Category, r.Subcategory)
			}
			if seen[k] {
				return fmt.Errorf("%w: rule %s/%s has duplicate keyword %q", ErrInvalid, r.Category, r.Subcategory, k)
			}
			seen[k] = true
		}
		for _, p := range r.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("%w: rule %s/%s pattern %q: %v", ErrInvalid, r.Category, r.Subcategory, p, err)
			}
		}
	}
	return nil
}

// Validate checks the category weight table. Exported so the score
// engine can re-check when constructed with a hand-built table.
func (s Scoring) Validate() error {
	if len(s.Categories) == 0 {
		return fmt.Errorf("%w: no score categories", ErrInvalid)
	}
	sum := 0.0
	names := make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		if c.Name == "" {
			return fmt.Errorf("%w: score category with empty name", ErrInvalid)
		}
		if names[c.Name] {
			return fmt.Errorf("%w: duplicate score category %q", ErrInvalid, c.Name)
		}
		names[c.Name] = true
		if c.Weight <= 0 {
			return fmt.Errorf("%w: category %s weight must be positive, got %f", ErrInvalid, c.Name, c.Weight)
		}
		if len(c.Features) == 0 {
			return fmt.Errorf("%w: category %s has no features", ErrInvalid, c.Name)
		}
		for _, f := range c.Features {
			if f.Name == "" {
				return fmt.Errorf("%w: category %s has a feature with empty name", ErrInvalid, c.Name)
			}
			if f.Weight <= 0 {
				return fmt.Errorf("%w: feature %s.%s weight must be positive", ErrInvalid, c.Name, f.Name)
			}
			if f.Min >= f.Max {
				return fmt.Errorf("%w: feature %s.%s bounds are not ordered (%f >= %f)", ErrInvalid, c.Name, f.Name, f.Min, f.Max)
			}
			if f.Direction != DirectionHigherIsBetter && f.Direction != DirectionLowerIsBetter {
				return fmt.Errorf("%w: feature %s.%s has unknown direction %q", ErrInvalid, c.Name, f.Name, f.Direction)
			}
		}
		sum += c.Weight
	}
	if math.Abs(sum-weightSumTarget) > weightSumTolerance {
		return fmt.Errorf("%w: category weights sum to %.2f, must sum to %.0f±%.1f", ErrInvalid, sum, weightSumTarget, weightSumTolerance)
	}
	return nil
}

// Validate checks alpha and the score range.
func (b Blend) Validate() error {
	if b.Alpha < 0 || b.Alpha > 1 {
		return fmt.Errorf("%w: blend alpha must be in [0,1], got %f", ErrInvalid, b.Alpha)
	}
	if b.ScoreMin >= b.ScoreMax {
		return fmt.Errorf("%w: score range is not ordered (%f >= %f)", ErrInvalid, b.ScoreMin, b.ScoreMax)
	}
	return nil
}

// ValidateAnchors checks the probability-to-score control points:
// strictly increasing probability, non-increasing score.
func ValidateAnchors(anchors []Anchor) error {
	if len(anchors) < 2 {
		return fmt.Errorf("%w: anchor table needs at least two points, got %d", ErrInvalid, len(anchors))
	}
	for i, a := range anchors {
		if a.Probability < 0 || a.Probability > 1 {
			return fmt.Errorf("%w: anchor %d probability %f outside [0,1]", ErrInvalid, i, a.Probability)
		}
		if i == 0 {
			continue
		}
		prev := anchors[i-1]
		if a.Probability <= prev.Probability {
			return fmt.Errorf("%w: anchor probabilities must be strictly increasing (%f then %f)", ErrInvalid, prev.Probability, a.Probability)
		}
		if a.Score > prev.Score {
			return fmt.Errorf("%w: anchor scores must be non-increasing (%f then %f)", ErrInvalid, prev.Score, a.Score)
		}
	}
	return nil
}
