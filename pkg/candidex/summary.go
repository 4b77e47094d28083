package candidex

import (
	"encoding/json"
	"strings"
	"time"
)

// profileURLBase synthesizes an absolute profile URL when the upstream row
// carries only a path, or nothing at all.
const profileURLBase = "https://app.ashbyhq.com"

// CandidateSummary is one row of the upstream candidate API projected to
// the fields the index and resolver need. ID is always non-empty; rows
// without an id are dropped at projection time.
type CandidateSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ProfileURL   string   `json:"profileUrl"`
	LinkedInURLs []string `json:"linkedInUrls"`
	LinkedInKeys []string `json:"linkedInKeys"`
	UpdatedAtMs  int64    `json:"updatedAtMs"`
	UpdatedAt    string   `json:"updatedAt"`
	CreatedAt    string   `json:"createdAt"`
	Email        string   `json:"email"`
}

// candidateRow is the union of upstream row shapes actually observed. The
// API duplicates identity across several optional fields; extraction below
// is explicit and prioritized rather than ad hoc.
type candidateRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProfileURL string `json:"profileUrl"`
	Profile    struct {
		URL string `json:"url"`
	} `json:"profile"`
	SocialLinks []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"socialLinks"`
	LinkedInURLs []string `json:"linkedInUrls"`
	UpdatedAt    string   `json:"updatedAt"`
	CreatedAt    string   `json:"createdAt"`
	Email        string   `json:"email"`

	PrimaryEmailAddress struct {
		Value string `json:"value"`
	} `json:"primaryEmailAddress"`
	EmailAddresses []struct {
		Value     string `json:"value"`
		IsPrimary bool   `json:"isPrimary"`
	} `json:"emailAddresses"`
}

// ProjectCandidate converts a raw upstream row into a summary. The second
// return is false for undecodable rows and rows without an id.
func ProjectCandidate(raw json.RawMessage) (*CandidateSummary, bool) {
	var row candidateRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, false
	}
	if strings.TrimSpace(row.ID) == "" {
		return nil, false
	}

	urls := append([]string{}, row.LinkedInURLs...)
	for _, link := range row.SocialLinks {
		if strings.EqualFold(link.Type, "linkedin") || IsLinkedInKey(NormalizeLinkedInKey(link.URL)) {
			urls = append(urls, link.URL)
		}
	}

	summary := &CandidateSummary{
		ID:           row.ID,
		Name:         row.Name,
		ProfileURL:   resolveProfileURL(row),
		LinkedInURLs: dedupeStrings(urls),
		LinkedInKeys: LinkedInKeysFromURLs(urls),
		UpdatedAt:    row.UpdatedAt,
		CreatedAt:    row.CreatedAt,
		Email:        extractRowEmail(row),
	}
	if ts, err := time.Parse(time.RFC3339, row.UpdatedAt); err == nil {
		summary.UpdatedAtMs = ts.UnixMilli()
	}
	return summary, true
}

// resolveProfileURL prefers the row's own URL fields and synthesizes an
// absolute URL from a bare path or, failing that, from the candidate id.
func resolveProfileURL(row candidateRow) string {
	u := row.ProfileURL
	if u == "" {
		u = row.Profile.URL
	}
	switch {
	case u == "":
		return profileURLBase + "/candidates/" + row.ID
	case strings.HasPrefix(u, "/"):
		return profileURLBase + u
	default:
		return u
	}
}

// extractRowEmail picks the best email: direct field, then the
// primary-flagged entry, then the first non-empty entry in the list.
func extractRowEmail(row candidateRow) string {
	if row.Email != "" {
		return row.Email
	}
	if row.PrimaryEmailAddress.Value != "" {
		return row.PrimaryEmailAddress.Value
	}
	for _, e := range row.EmailAddresses {
		if e.IsPrimary && e.Value != "" {
			return e.Value
		}
	}
	for _, e := range row.EmailAddresses {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
