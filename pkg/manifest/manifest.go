// Package manifest provides loading and validation of atsrelay upload job
// manifests.
//
// An upload job manifest is a YAML or JSON file that names one target job
// and the candidates to push into it, for batch orchestration from the CLI.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown
// properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	job:
//	  id: "4c3a1a7e-job"
//	write:
//	  confirmation: "i-know-what-i-am-doing"
//	candidates:
//	  - name: Jane Doe
//	    email: jane@example.com
//	    linkedInUrl: https://www.linkedin.com/in/jane-doe/
package manifest

// Manifest represents a validated upload job manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/atsrelay/v1.0.0/upload-job-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Job names the upstream job the candidates are uploaded against.
	Job JobConfig `json:"job" yaml:"job"`

	// Write carries the write confirmation forwarded on mutating calls.
	// Optional; required in practice when the relay demands confirmation.
	Write WriteConfig `json:"write,omitempty" yaml:"write,omitempty"`

	// Candidates lists the profiles to upload. At least one is required;
	// each entry needs a name or a LinkedIn URL.
	Candidates []CandidateEntry `json:"candidates" yaml:"candidates"`
}

// JobConfig names the target job.
type JobConfig struct {
	ID string `json:"id" yaml:"id"`
}

// WriteConfig carries write-safety options for the whole batch.
type WriteConfig struct {
	Confirmation string `json:"confirmation,omitempty" yaml:"confirmation,omitempty"`
}

// CandidateEntry is one profile to upload.
type CandidateEntry struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone       string `json:"phone,omitempty" yaml:"phone,omitempty"`
	LinkedInURL string `json:"linkedInUrl,omitempty" yaml:"linkedInUrl,omitempty"`
}

// DefaultVersion is the current manifest schema version.
const DefaultVersion = "1.0"

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
}
