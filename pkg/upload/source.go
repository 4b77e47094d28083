package upload

import "strings"

// Source is one row of the upstream source catalog.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// resolveSourceID picks the attribution source by descending preference:
// exact "sourced: gem", exact "gem", a title containing both "sourced" and
// "gem", then any title containing "gem". No match returns "" and the
// orchestrator simply omits attribution.
func resolveSourceID(sources []Source) string {
	type rule func(title string) bool
	rules := []rule{
		func(t string) bool { return t == "sourced: gem" },
		func(t string) bool { return t == "gem" },
		func(t string) bool { return strings.Contains(t, "sourced") && strings.Contains(t, "gem") },
		func(t string) bool { return strings.Contains(t, "gem") },
	}

	for _, match := range rules {
		for _, s := range sources {
			if match(strings.ToLower(strings.TrimSpace(s.Title))) {
				return s.ID
			}
		}
	}
	return ""
}
