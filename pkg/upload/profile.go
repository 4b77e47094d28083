package upload

import (
	"encoding/json"
	"strings"

	"github.com/3leaps/atsrelay/pkg/candidex"
)

// Profile is the canonical source-candidate identity the orchestrator works
// from.
type Profile struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedInUrl,omitempty"`
}

// LinkedInKey returns the normalized lookup key for the profile URL, or ""
// when the URL is absent or not a LinkedIn link.
func (p Profile) LinkedInKey() string {
	if p.LinkedInURL == "" {
		return ""
	}
	key := candidex.NormalizeLinkedInKey(p.LinkedInURL)
	if !candidex.IsLinkedInKey(key) {
		return ""
	}
	return key
}

// rawProfile is the union of profile shapes callers send. Scraped profiles
// spell the same fields several ways; extraction is prioritized, not merged.
type rawProfile struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	Email          string       `json:"email"`
	Emails         []emailEntry `json:"emails"`
	EmailAddresses []emailEntry `json:"emailAddresses"`

	Phone       string `json:"phone"`
	PhoneNumber string `json:"phoneNumber"`

	LinkedInURL  string `json:"linkedInUrl"`
	LinkedinURL  string `json:"linkedinUrl"`
	LinkedIn     string `json:"linkedIn"`
	PublicURL    string `json:"publicProfileUrl"`
}

type emailEntry struct {
	Value     string `json:"value"`
	Email     string `json:"email"`
	IsPrimary bool   `json:"isPrimary"`
}

func (e emailEntry) address() string {
	if e.Value != "" {
		return e.Value
	}
	return e.Email
}

// ExtractProfile projects a raw caller-supplied profile object into the
// canonical shape. Unknown fields are ignored; nothing here is fatal, the
// orchestrator validates the result.
func ExtractProfile(raw json.RawMessage) Profile {
	var rp rawProfile
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Profile{}
	}

	name := strings.TrimSpace(rp.Name)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(rp.FirstName) + " " + strings.TrimSpace(rp.LastName))
	}

	phone := strings.TrimSpace(rp.Phone)
	if phone == "" {
		phone = strings.TrimSpace(rp.PhoneNumber)
	}

	return Profile{
		Name:        name,
		Email:       extractEmail(rp),
		Phone:       phone,
		LinkedInURL: firstNonEmpty(rp.LinkedInURL, rp.LinkedinURL, rp.LinkedIn, rp.PublicURL),
	}
}

// extractEmail applies the priority search: direct field, then a
// primary-flagged entry, then the first non-empty entry, across both list
// spellings.
func extractEmail(rp rawProfile) string {
	if e := strings.TrimSpace(rp.Email); e != "" {
		return e
	}
	for _, list := range [][]emailEntry{rp.Emails, rp.EmailAddresses} {
		for _, entry := range list {
			if entry.IsPrimary && entry.address() != "" {
				return entry.address()
			}
		}
	}
	for _, list := range [][]emailEntry{rp.Emails, rp.EmailAddresses} {
		for _, entry := range list {
			if a := entry.address(); a != "" {
				return a
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
