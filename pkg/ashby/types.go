package ashby

import "encoding/json"

// Upstream RPC method names consumed by the relay.
const (
	MethodCandidateList           = "candidate.list"
	MethodCandidateSearch         = "candidate.search"
	MethodCandidateInfo           = "candidate.info"
	MethodCandidateCreate         = "candidate.create"
	MethodApplicationInfo         = "application.info"
	MethodApplicationCreate       = "application.create"
	MethodApplicationChangeStage  = "application.changeStage"
	MethodApplicationChangeSource = "application.changeSource"
	MethodApplicationUpdate       = "application.update"
	MethodInterviewPlanInfo       = "jobInterviewPlan.info"
	MethodSourceList              = "source.list"
	MethodUserList                = "user.list"
	MethodAPIKeyInfo              = "apiKey.info"
	MethodJobList                 = "job.list"
)

// Response is a decoded successful envelope. Results holds the payload;
// the pagination fields are populated for list-shaped methods.
type Response struct {
	// Raw is the full response body.
	Raw json.RawMessage

	// Results is the "results" field, object or array.
	Results json.RawMessage

	// MoreDataAvailable signals further pages behind NextCursor.
	MoreDataAvailable bool

	// NextCursor is the opaque pagination cursor for the next page.
	NextCursor string

	// SyncToken is the opaque incremental-sync cursor, when issued.
	SyncToken string
}

// envelope is the upstream wire shape. Success must be present and true for
// a response to count as successful; a 200 without it is a failure.
type envelope struct {
	Success           *bool           `json:"success"`
	Results           json.RawMessage `json:"results"`
	MoreDataAvailable bool            `json:"moreDataAvailable"`
	NextCursor        string          `json:"nextCursor"`
	SyncToken         string          `json:"syncToken"`
	Message           string          `json:"message"`
	Errors            []string        `json:"errors"`
	ErrorInfo         struct {
		Message string `json:"message"`
	} `json:"errorInfo"`
}

// ListOptions parameterizes one candidate.list page request.
type ListOptions struct {
	Cursor    string
	Limit     int
	SyncToken string
}

// CandidatePage is one page of the candidate feed. Rows stay raw JSON; the
// index layer owns projection because upstream row shapes vary.
type CandidatePage struct {
	Rows              []json.RawMessage
	MoreDataAvailable bool
	NextCursor        string
	SyncToken         string
}

// SearchQuery parameterizes candidate.search. At least one field must be
// set; both may be.
type SearchQuery struct {
	Email string
	Name  string
}
