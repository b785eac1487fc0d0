// Package policy implements the data-driven DLP/RBAC/ABAC rule evaluator
// (spec.md §9 design notes): a small closed grammar of priority + path +
// match + action objects, not a rule-engine framework.
package policy

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hyphalmesh/substrate/pkg/models"
)

// Document is the payload a policy is evaluated against: a shallow,
// JSON-pointer-subset addressable view of a nutrient or memory. Callers
// build one from the fields relevant to DLP/RBAC/ABAC checks; it is
// deliberately not a full JSON tree walker.
type Document map[string]string

// Lookup resolves a minimal JSON-pointer-subset path ("/summary",
// "/snippets/0") against the document. Only single-level and
// array-index-suffixed paths are supported, matching the closed grammar
// described by models.PolicyRule.Path.
func (d Document) Lookup(path string) (string, bool) {
	v, ok := d[path]
	return v, ok
}

// Verdict is the outcome of evaluating a set of policies against a document.
type Verdict struct {
	Allowed   bool
	DeniedBy  string // policy id of the first matching deny rule, if denied
	MatchedOn string // path that triggered the deny, for audit logging
}

// Evaluate runs policies in descending priority order; within a policy,
// rules are evaluated in order and the first match decides that policy's
// vote. The first policy to vote deny wins overall (first-deny-wins);
// absent any deny, the document is allowed.
func Evaluate(policies []models.Policy, doc Document) Verdict {
	ordered := make([]models.Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, p := range ordered {
		if !p.Enabled {
			continue
		}
		for _, rule := range p.Rules {
			val, ok := doc.Lookup(rule.Path)
			if !ok {
				continue
			}
			if !ruleMatches(rule.Match, val) {
				continue
			}
			if rule.Action == models.ActionDeny {
				return Verdict{Allowed: false, DeniedBy: p.ID, MatchedOn: rule.Path}
			}
			break // this policy's first matching rule allows; move to the next policy
		}
	}
	return Verdict{Allowed: true}
}

// ruleMatches reports whether value satisfies pattern. Empty pattern
// matches any present value (existence check); otherwise substring match.
func ruleMatches(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	return strings.Contains(value, pattern)
}

// NutrientDocument builds the Document view of a nutrient used for DLP
// evaluation at broadcast time.
func NutrientDocument(n models.Nutrient) Document {
	doc := Document{
		"/summary":     n.Summary,
		"/sender_agent": n.SenderAgent,
		"/sensitivity":  string(n.Sensitivity),
		"/max_hops":     strconv.Itoa(n.MaxHops),
	}
	for i, s := range n.Snippets {
		doc["/snippets/"+strconv.Itoa(i)] = s
	}
	for i, h := range n.ToolHints {
		doc["/tool_hints/"+strconv.Itoa(i)] = h
	}
	return doc
}
