// Package coa holds the canonical chart of accounts and the static taxonomy
// matcher that classifies financial line-item labels against it.
package coa

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/normalize"
)

//go:embed accounts.yaml
var accountsYAML []byte

type chartAccount struct {
	model.COAAccount `yaml:",inline"`
	Synonyms         []string `yaml:"synonyms,omitempty"`
}

type chartFile struct {
	Accounts []chartAccount `yaml:"accounts"`
}

// Chart is the loaded chart of accounts with its lookup indexes. All indexes
// key on normalized labels; the chart is immutable after load.
type Chart struct {
	accounts []model.COAAccount
	byCode   map[string]model.COAAccount

	// canonical maps the normalized account name to its code.
	canonical map[string]string
	// synonyms maps each normalized synonym to its account code.
	synonyms map[string]string
	// categoryTotals maps a category to its aggregate total account code.
	categoryTotals map[string]string
}

// LoadChart parses the embedded chart of accounts.
func LoadChart() (*Chart, error) {
	return parseChart(accountsYAML)
}

func parseChart(raw []byte) (*Chart, error) {
	var f chartFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "coa: parse chart of accounts")
	}
	if len(f.Accounts) == 0 {
		return nil, eris.New("coa: chart of accounts is empty")
	}

	c := &Chart{
		accounts:       make([]model.COAAccount, 0, len(f.Accounts)),
		byCode:         make(map[string]model.COAAccount, len(f.Accounts)),
		canonical:      make(map[string]string, len(f.Accounts)),
		synonyms:       make(map[string]string),
		categoryTotals: make(map[string]string),
	}

	for _, a := range f.Accounts {
		if a.Code == "" || a.Name == "" {
			return nil, eris.Errorf("coa: account %q/%q missing code or name", a.Code, a.Name)
		}
		if _, dup := c.byCode[a.Code]; dup {
			return nil, eris.Errorf("coa: duplicate account code %s", a.Code)
		}

		c.accounts = append(c.accounts, a.COAAccount)
		c.byCode[a.Code] = a.COAAccount
		c.canonical[normalize.Label(a.Name)] = a.Code

		for _, syn := range a.Synonyms {
			key := normalize.Label(syn)
			if key == "" {
				continue
			}
			if _, dup := c.synonyms[key]; dup {
				return nil, eris.Errorf("coa: synonym %q claimed twice", syn)
			}
			c.synonyms[key] = a.Code
		}

		// First total per category wins; the chart lists the primary
		// aggregate before any summary rows.
		if a.IsTotal {
			cat := normalize.Label(a.Category)
			if _, ok := c.categoryTotals[cat]; !ok {
				c.categoryTotals[cat] = a.Code
			}
		}
	}

	return c, nil
}

// Accounts returns every account in chart order.
func (c *Chart) Accounts() []model.COAAccount {
	out := make([]model.COAAccount, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// ByCode looks up an account by its code.
func (c *Chart) ByCode(code string) (model.COAAccount, bool) {
	a, ok := c.byCode[code]
	return a, ok
}
