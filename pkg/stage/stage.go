// Package stage picks the preferred interview stage for candidate uploads.
//
// The preference order targets "recruiting screen"-like stages first, then
// "lead"-like stages, then the earliest stage in the interview plan. The
// order is load-bearing: callers depend on the exact ranking, so new rules
// go at the end or not at all.
package stage

import (
	"sort"
	"strings"
)

// Stage is one interview plan stage as reported upstream.
type Stage struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type,omitempty"`
	OrderInInterviewPlan int    `json:"orderInInterviewPlan"`
}

// Strategy names report which rule selected the stage. They are stable
// identifiers surfaced in results and logs.
const (
	StrategyRecruitingScreenExact    = "recruiting_screen_exact"
	StrategyRecruiterScreenExact     = "recruiter_screen_exact"
	StrategyRecruitingScreenContains = "recruiting_screen_contains"
	StrategyRecruiterScreenContains  = "recruiter_screen_contains"
	StrategyRecruitScreenTokens      = "recruit_screen_tokens"
	StrategyLeadExact                = "lead_exact"
	StrategyLeadContains             = "lead_contains"
	StrategyEarliestByOrder          = "earliest_by_order"
	StrategyNone                     = "none"
)

// Selection is the outcome of a pick: the chosen stage (nil when the input
// was empty) and the rule that chose it.
type Selection struct {
	Stage    *Stage `json:"stage,omitempty"`
	Strategy string `json:"strategy"`
}

// Pick selects a stage by ordered preference. Matching is case-insensitive
// and whitespace-insensitive on titles; each rule short-circuits the rest.
// Within a rule, the first matching stage in input order wins.
func Pick(stages []Stage) Selection {
	if len(stages) == 0 {
		return Selection{Strategy: StrategyNone}
	}

	rules := []struct {
		strategy string
		match    func(title string) bool
	}{
		{StrategyRecruitingScreenExact, func(t string) bool { return t == "recruiting screen" }},
		{StrategyRecruiterScreenExact, func(t string) bool { return t == "recruiter screen" }},
		{StrategyRecruitingScreenContains, func(t string) bool { return strings.Contains(t, "recruiting screen") }},
		{StrategyRecruiterScreenContains, func(t string) bool { return strings.Contains(t, "recruiter screen") }},
		{StrategyRecruitScreenTokens, func(t string) bool {
			return strings.Contains(t, "recruit") && strings.Contains(t, "screen")
		}},
		{StrategyLeadExact, func(t string) bool { return t == "lead" }},
		{StrategyLeadContains, func(t string) bool { return strings.Contains(t, "lead") }},
	}

	for _, rule := range rules {
		for i := range stages {
			if rule.match(normalizeTitle(stages[i].Title)) {
				return Selection{Stage: &stages[i], Strategy: rule.strategy}
			}
		}
	}

	// Fall back to the earliest stage in the pipeline. Stable sort keeps
	// input order among equal order values.
	ordered := make([]*Stage, len(stages))
	for i := range stages {
		ordered[i] = &stages[i]
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].OrderInInterviewPlan < ordered[b].OrderInInterviewPlan
	})
	return Selection{Stage: ordered[0], Strategy: StrategyEarliestByOrder}
}

// normalizeTitle lowercases and collapses internal runs of whitespace so
// "Recruiter  Screen " matches "recruiter screen".
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
