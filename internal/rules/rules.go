// Package rules evaluates the entitlement rule table: which role ids an
// account has earned given everything it owns. Evaluation is pure; the table
// is parsed once at startup and read-only afterwards.
package rules

import (
	"sort"
	"strings"

	"skyvault.gg/internal/inventory"
	"skyvault.gg/internal/nbt"
)

// Rule grants Role when every id in Required is present in the candidate
// set. Single-item rules have len(Required) == 1.
type Rule struct {
	Required []string
	Role     string
}

// AttributeRule grants Role when an item with the given type id carries a
// non-empty extra attribute of the given name (e.g. raffle prize markers).
type AttributeRule struct {
	ItemID    string
	Attribute string
	Role      string
}

// Table is the full parsed rule set.
type Table struct {
	Rules     []Rule
	Attribute []AttributeRule
}

// Parse builds a Table from the configuration mapping. A key is either a
// single item id or a comma-joined list of ids (conjunctive, no whitespace).
// Keys are sorted so evaluation and debug output are deterministic; order
// never affects the result because grants are purely additive.
func Parse(roleMap map[string]string) Table {
	keys := make([]string, 0, len(roleMap))
	for k := range roleMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := Table{Rules: make([]Rule, 0, len(keys))}
	for _, k := range keys {
		t.Rules = append(t.Rules, Rule{
			Required: strings.Split(k, ","),
			Role:     roleMap[k],
		})
	}
	return t
}

// Candidates builds the deduplicated identifier set rule evaluation runs
// against: every item's type id, every applied-skin id, and every skin
// attribute found directly on an item.
func Candidates(items map[string]inventory.Item, appliedSkins []string) map[string]bool {
	set := make(map[string]bool, len(items)+len(appliedSkins))
	for _, it := range items {
		if id := it.ID(); id != "" {
			set[id] = true
		}
		if skin := it.Skin(); skin != "" {
			set[skin] = true
		}
	}
	for _, skin := range appliedSkins {
		if skin != "" {
			set[skin] = true
		}
	}
	return set
}

// Evaluate returns the sorted set of role ids earned by the given item map
// and applied-skin list. Conjunctive rules require every listed id; partial
// ownership grants nothing. No rule can revoke another rule's grant.
func (t Table) Evaluate(items map[string]inventory.Item, appliedSkins []string) []string {
	candidates := Candidates(items, appliedSkins)

	granted := map[string]bool{}
	for _, r := range t.Rules {
		ok := true
		for _, id := range r.Required {
			if !candidates[id] {
				ok = false
				break
			}
		}
		if ok {
			granted[r.Role] = true
		}
	}

	for _, ar := range t.Attribute {
		for _, it := range items {
			if it.ID() != ar.ItemID {
				continue
			}
			ea, ok := it.ExtraAttributes()
			if !ok {
				continue
			}
			// Present counts, except an explicitly empty string.
			if v, found := ea.Get(ar.Attribute); found && (v.Type != nbt.TypeString || v.Str != "") {
				granted[ar.Role] = true
				break
			}
		}
	}

	roles := make([]string, 0, len(granted))
	for role := range granted {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
