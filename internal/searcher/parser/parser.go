package parser

import (
	"strings"
)

// ExcludeMarker prefixes a term that must be absent from matching documents.
const ExcludeMarker = "-"

// Term is one signed query term.
type Term struct {
	Token   string
	Exclude bool
}

// QueryPlan is the ordered list of terms of one search.
type QueryPlan struct {
	Terms    []Term
	RawQuery string
}

// Parse turns command-line query arguments into a plan. A leading "-" marks
// an exclusion term and is stripped; arguments that are empty after
// stripping are dropped. Order is preserved.
func Parse(args []string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]Term, 0, len(args)),
		RawQuery: strings.Join(args, " "),
	}
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		exclude := false
		if strings.HasPrefix(arg, ExcludeMarker) {
			exclude = true
			arg = strings.TrimPrefix(arg, ExcludeMarker)
		}
		if arg == "" {
			continue
		}
		plan.Terms = append(plan.Terms, Term{Token: arg, Exclude: exclude})
	}
	return plan
}

// Empty reports whether the plan has no terms at all.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// HasInclusion reports whether at least one term is an inclusion term.
func (p *QueryPlan) HasInclusion() bool {
	for _, t := range p.Terms {
		if !t.Exclude {
			return true
		}
	}
	return false
}

// Normalized renders the plan in a canonical form: inclusion and exclusion
// tokens are case-folded, deduplicated and sorted. Two plans with the same
// normalized form select the same documents.
func (p *QueryPlan) Normalized() string {
	include := make(map[string]struct{})
	exclude := make(map[string]struct{})
	for _, t := range p.Terms {
		tok := strings.ToLower(t.Token)
		if t.Exclude {
			exclude[tok] = struct{}{}
		} else {
			include[tok] = struct{}{}
		}
	}
	parts := []string{"AND", strings.Join(sortedKeys(include), ",")}
	if len(exclude) > 0 {
		parts = append(parts, "NOT:"+strings.Join(sortedKeys(exclude), ","))
	}
	return strings.Join(parts, "|")
}
