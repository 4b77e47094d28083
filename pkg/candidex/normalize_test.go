package candidex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLinkedInKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"bare key unchanged", "linkedin.com/in/jane-doe", "linkedin.com/in/jane-doe"},
		{"https scheme stripped", "https://linkedin.com/in/jane-doe", "linkedin.com/in/jane-doe"},
		{"http scheme stripped", "http://linkedin.com/in/jane-doe", "linkedin.com/in/jane-doe"},
		{"www stripped", "https://www.linkedin.com/in/jane-doe", "linkedin.com/in/jane-doe"},
		{"trailing slash stripped", "https://linkedin.com/in/jane-doe/", "linkedin.com/in/jane-doe"},
		{"query stripped", "https://linkedin.com/in/jane-doe?utm=x&y=1", "linkedin.com/in/jane-doe"},
		{"fragment stripped", "https://linkedin.com/in/jane-doe#about", "linkedin.com/in/jane-doe"},
		{"lower-cased", "https://LinkedIn.com/in/Jane-Doe", "linkedin.com/in/jane-doe"},
		{"everything at once", "https://www.linkedin.com/in/jane-doe/?x=1#y", "linkedin.com/in/jane-doe"},
		{"whitespace trimmed", "  https://linkedin.com/in/jane-doe ", "linkedin.com/in/jane-doe"},
		{"non-linkedin still normalized", "https://example.com/p/1/", "example.com/p/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLinkedInKey(tt.input))
		})
	}
}

// All spellings of the same profile URL must land on one key: the index
// writes and the resolver reads through the same normalization.
func TestNormalizeLinkedInKey_EquivalenceClass(t *testing.T) {
	variants := []string{
		"linkedin.com/in/jane-doe",
		"www.linkedin.com/in/jane-doe",
		"https://linkedin.com/in/jane-doe",
		"https://www.linkedin.com/in/jane-doe",
		"https://www.linkedin.com/in/jane-doe/",
		"https://www.linkedin.com/in/jane-doe?trk=feed",
		"https://www.linkedin.com/in/jane-doe/#experience",
		"https://www.linkedin.com/in/jane-doe/?x=1#y",
	}

	want := "linkedin.com/in/jane-doe"
	for _, v := range variants {
		assert.Equal(t, want, NormalizeLinkedInKey(v), "variant %q", v)
	}
}

func TestIsLinkedInKey(t *testing.T) {
	assert.True(t, IsLinkedInKey("linkedin.com/in/jane-doe"))
	assert.False(t, IsLinkedInKey("example.com/in/jane-doe"))
	assert.False(t, IsLinkedInKey(""))
}

func TestKeyFromHandle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare handle", "jane-doe", "linkedin.com/in/jane-doe"},
		{"at-prefixed", "@jane-doe", "linkedin.com/in/jane-doe"},
		{"in-prefixed", "in/jane-doe", "linkedin.com/in/jane-doe"},
		{"slash-wrapped", "/jane-doe/", "linkedin.com/in/jane-doe"},
		{"full url passthrough", "https://www.linkedin.com/in/jane-doe/", "linkedin.com/in/jane-doe"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KeyFromHandle(tt.input))
		})
	}
}

func TestLinkedInKeysFromURLs(t *testing.T) {
	urls := []string{
		"https://www.linkedin.com/in/jane-doe/",
		"linkedin.com/in/jane-doe",          // duplicate after normalization
		"https://github.com/jane-doe",       // not a linkedin link
		"https://linkedin.com/in/other-one", // second key
		"",
	}

	assert.Equal(t, []string{"linkedin.com/in/jane-doe", "linkedin.com/in/other-one"}, LinkedInKeysFromURLs(urls))
}
