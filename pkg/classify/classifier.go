package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lendflow-in/credscore/pkg/config"
	"github.com/lendflow-in/credscore/pkg/txn"
)

// Category and subcategory names assigned by the classifier. The taxonomy
// config may add more; these are the ones with structural meaning.
const (
	CategoryIncome   = "INCOME"
	CategoryExcluded = "EXCLUDED"
	CategoryRefund   = "REFUND"
	CategoryP2P      = "P2P"
	CategoryOther    = "OTHER"
	CategoryExpense  = "EXPENSE"

	SubSalary        = "SALARY"
	SubLargeOneTime  = "LARGE_ONE_TIME"
	SubUnknownCredit = "UNKNOWN_CREDIT"
	SubOther         = "OTHER"
)

// Classifier labels transactions by applying an ordered rule table,
// first match wins. All matchers are compiled once at construction and
// the classifier is immutable afterwards, so a single instance can be
// shared across concurrent scoring runs.
type Classifier struct {
	salaryCap float64
	rules     []compiledRule
}

type compiledRule struct {
	label     txn.Label
	direction txn.Direction // empty applies to both directions
	matcher   *regexp.Regexp
}

// New compiles the taxonomy into a classifier. The taxonomy must already
// be validated; compile failures are still reported.
func New(t config.Taxonomy) (*Classifier, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	c := &Classifier{
		salaryCap: t.OneTimeSalaryCap,
		rules:     make([]compiledRule, 0, len(t.Rules)),
	}

	for _, r := range t.Rules {
		m, err := compileMatcher(r)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, compiledRule{
			label: txn.Label{
				Category:    r.Category,
				Subcategory: r.Subcategory,
				IsIncome:    r.Income,
				IsExpense:   r.Expense,
			},
			direction: txn.Direction(r.Direction),
			matcher:   m,
		})
	}

	return c, nil
}

func validate(t config.Taxonomy) error {
	if len(t.Rules) == 0 {
		return fmt.Errorf("%w: taxonomy has no rules", config.ErrInvalid)
	}
	if t.OneTimeSalaryCap <= 0 {
		return fmt.Errorf("%w: taxonomy has no salary cap", config.ErrInvalid)
	}
	return nil
}

// compileMatcher folds a rule's keywords and raw patterns into a single
// case-insensitive regexp.
func compileMatcher(r config.Rule) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(r.Keywords)+len(r.Patterns))
	for _, k := range r.Keywords {
		parts = append(parts, regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(k))))
	}
	parts = append(parts, r.Patterns...)

	// An empty alternation would match every narration.
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: rule %s/%s has no keywords or patterns", config.ErrInvalid, r.Category, r.Subcategory)
	}

	m, err := regexp.Compile("(?i)(" + strings.Join(parts, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s/%s: %v", config.ErrInvalid, r.Category, r.Subcategory, err)
	}
	return m, nil
}

// Classify labels one transaction. Pure and deterministic: identical
// inputs always produce identical labels, and every input gets exactly
// one label (the direction fallbacks make "unmatched" impossible).
func (c *Classifier) Classify(description string, amount float64, direction txn.Direction) txn.Label {
	for _, r := range c.rules {
		if r.direction != "" && r.direction != direction {
			continue
		}
		if !r.matcher.MatchString(description) {
			continue
		}

		// Salary-pattern credits above the cap are one-off bonuses or
		// settlements, not recurring income.
		if r.label.Category == CategoryIncome && r.label.Subcategory == SubSalary && amount > c.salaryCap {
			return txn.Label{Category: CategoryExcluded, Subcategory: SubLargeOneTime}
		}

		return r.label
	}

	if direction == txn.Credit {
		return txn.Label{Category: CategoryOther, Subcategory: SubUnknownCredit}
	}
	return txn.Label{Category: CategoryExpense, Subcategory: SubOther, IsExpense: true}
}

// ClassifyAll labels a full statement.
func (c *Classifier) ClassifyAll(list []txn.Transaction) []txn.Classified {
	out := make([]txn.Classified, len(list))
	for i, t := range list {
		out[i] = txn.Classified{
			Transaction: t,
			Label:       c.Classify(t.Description, t.Amount, t.Direction),
		}
	}
	return out
}

// SalaryCap returns the configured one-time salary exclusion threshold.
func (c *Classifier) SalaryCap() float64 {
	return c.salaryCap
}
