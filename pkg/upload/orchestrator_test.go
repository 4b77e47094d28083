package upload

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
	"github.com/3leaps/atsrelay/pkg/writegate"
)

func summaryJSON(t *testing.T, raw string) *candidex.CandidateSummary {
	t.Helper()
	s, ok := candidex.ProjectCandidate(json.RawMessage(raw))
	require.True(t, ok)
	return s
}

type rpcCall struct {
	method  string
	action  string
	payload map[string]any
	opts    *ashby.CallOptions
}

// fakeRPC routes calls by method name and records everything.
type fakeRPC struct {
	mu            sync.Mutex
	calls         []rpcCall
	handlers      map[string]func(payload map[string]any) (*ashby.Response, error)
	searchFn      func(q ashby.SearchQuery) ([]json.RawMessage, error)
	searches      []ashby.SearchQuery
	searchActions []string
}

func (f *fakeRPC) Call(ctx context.Context, method string, payload map[string]any, audit ashby.AuditContext, opts *ashby.CallOptions) (*ashby.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rpcCall{method: method, action: audit.ActionID, payload: payload, opts: opts})
	handler := f.handlers[method]
	f.mu.Unlock()
	if handler == nil {
		return &ashby.Response{}, nil
	}
	return handler(payload)
}

func (f *fakeRPC) SearchCandidates(ctx context.Context, q ashby.SearchQuery, audit ashby.AuditContext) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.searches = append(f.searches, q)
	f.searchActions = append(f.searchActions, audit.ActionID)
	fn := f.searchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(q)
}

func (f *fakeRPC) callsTo(method string) []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func results(v any) *ashby.Response {
	b, _ := json.Marshal(v)
	return &ashby.Response{Results: b}
}

func openGate(methods ...string) *writegate.Gate {
	return writegate.New(writegate.Policy{
		Enabled:             true,
		AllowedMethods:      methods,
		RequireConfirmation: true,
		ConfirmationToken:   "relay-test-token",
	}, nil)
}

func baseHandlers() map[string]func(map[string]any) (*ashby.Response, error) {
	return map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodSourceList: func(map[string]any) (*ashby.Response, error) {
			return results([]Source{
				{ID: "src-other", Title: "Referral"},
				{ID: "src-gem", Title: "Sourced: Gem"},
			}), nil
		},
		ashby.MethodInterviewPlanInfo: func(map[string]any) (*ashby.Response, error) {
			return results(map[string]any{"stages": []map[string]any{
				{"id": "st-lead", "title": "Lead", "orderInInterviewPlan": 0},
				{"id": "st-screen", "title": "Recruiter Screen", "orderInInterviewPlan": 1},
			}}), nil
		},
	}
}

func janeProfile() Profile {
	return Profile{
		Name:        "Jane Doe",
		Email:       "jane@example.com",
		Phone:       "+1 555 0100",
		LinkedInURL: "https://www.linkedin.com/in/jane-doe/",
	}
}

func TestRun_CreatesCandidateAndApplication(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}
	rpc.handlers[ashby.MethodCandidateCreate] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "name": "Jane Doe", "profileUrl": "https://app.ashbyhq.com/candidates/cand-1"}), nil
	}
	rpc.handlers[ashby.MethodCandidateInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "applicationIds": []string{}}), nil
	}
	rpc.handlers[ashby.MethodApplicationCreate] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "app-1", "job": map[string]any{"id": "job-1"}}), nil
	}
	rpc.handlers[ashby.MethodApplicationInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "app-1", "status": "Active", "job": map[string]any{"id": "job-1"}}), nil
	}

	gate := openGate(ashby.MethodCandidateCreate, ashby.MethodApplicationCreate)
	credited := NewCreditedResolver(rpc, "user-fixed", "", nil)
	o := NewOrchestrator(rpc, gate, credited, nil)

	got, err := o.Run(context.Background(), Request{
		Profile:           janeProfile(),
		JobID:             "job-1",
		WriteConfirmation: "relay-test-token",
	}, ashby.AuditContext{})
	require.NoError(t, err)

	assert.Equal(t, "cand-1", got.CandidateID)
	assert.True(t, got.CandidateCreated)
	assert.Equal(t, "app-1", got.ApplicationID)
	assert.True(t, got.ApplicationCreated)
	assert.Equal(t, "https://app.ashbyhq.com/candidates/cand-1", got.ProfileURL)
	assert.Equal(t, "src-gem", got.SourceID)
	assert.Equal(t, "user-fixed", got.CreditedToUserID)
	require.NotNil(t, got.Stage)
	assert.Equal(t, "st-screen", got.Stage.ID)
	assert.Equal(t, "recruiter_screen_exact", got.StageStrategy)
	assert.Empty(t, got.Aligned)

	// Both searches ran: email first, then name.
	require.Len(t, rpc.searches, 2)
	assert.Equal(t, "jane@example.com", rpc.searches[0].Email)
	assert.Equal(t, "Jane Doe", rpc.searches[1].Name)

	creates := rpc.callsTo(ashby.MethodCandidateCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, "Jane Doe", creates[0].payload["name"])
	assert.Equal(t, "src-gem", creates[0].payload["sourceId"])
	assert.Equal(t, "user-fixed", creates[0].payload["creditedToUserId"])
	require.NotNil(t, creates[0].opts)
	assert.Equal(t, "relay-test-token", creates[0].opts.WriteConfirmation)

	appCreates := rpc.callsTo(ashby.MethodApplicationCreate)
	require.Len(t, appCreates, 1)
	assert.Equal(t, "cand-1", appCreates[0].payload["candidateId"])
	assert.Equal(t, "job-1", appCreates[0].payload["jobId"])
	assert.Equal(t, "st-screen", appCreates[0].payload["interviewStageId"])
}

func TestRun_MatchesExistingAndAlignsApplication(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}
	rpc.searchFn = func(q ashby.SearchQuery) ([]json.RawMessage, error) {
		return []json.RawMessage{
			json.RawMessage(`{"id":"cand-other","name":"Jane Doe","email":"other@example.com"}`),
			json.RawMessage(`{"id":"cand-1","name":"Jane Doe","socialLinks":[{"type":"LinkedIn","url":"https://linkedin.com/in/jane-doe"}]}`),
		}, nil
	}
	rpc.handlers[ashby.MethodCandidateInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "applicationIds": []string{"app-1"}}), nil
	}
	rpc.handlers[ashby.MethodApplicationInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{
			"id":                    "app-1",
			"job":                   map[string]any{"id": "job-1"},
			"source":                map[string]any{"id": "src-old"},
			"creditedToUser":        map[string]any{"id": "user-old"},
			"currentInterviewStage": map[string]any{"id": "st-lead"},
		}), nil
	}
	aligner := func(map[string]any) (*ashby.Response, error) { return results(map[string]any{"id": "app-1"}), nil }
	rpc.handlers[ashby.MethodApplicationChangeSource] = aligner
	rpc.handlers[ashby.MethodApplicationChangeStage] = aligner

	// application.update deliberately absent from the allowlist: the
	// credited-to difference must be skipped, not blocked.
	gate := openGate(ashby.MethodApplicationChangeSource, ashby.MethodApplicationChangeStage)
	credited := NewCreditedResolver(rpc, "user-fixed", "", nil)
	o := NewOrchestrator(rpc, gate, credited, nil)

	got, err := o.Run(context.Background(), Request{
		Profile:           janeProfile(),
		JobID:             "job-1",
		WriteConfirmation: "relay-test-token",
	}, ashby.AuditContext{})
	require.NoError(t, err)

	assert.Equal(t, "cand-1", got.CandidateID, "linkedin key match beats the earlier email row")
	assert.False(t, got.CandidateCreated)
	assert.False(t, got.ApplicationCreated)
	assert.Equal(t, []string{"source", "stage"}, got.Aligned)

	assert.Empty(t, rpc.callsTo(ashby.MethodCandidateCreate))
	assert.Empty(t, rpc.callsTo(ashby.MethodApplicationUpdate))
	require.Len(t, rpc.callsTo(ashby.MethodApplicationChangeSource), 1)
	require.Len(t, rpc.callsTo(ashby.MethodApplicationChangeStage), 1)
}

func TestRun_AlreadyAlignedApplicationTouchesNothing(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}
	rpc.searchFn = func(ashby.SearchQuery) ([]json.RawMessage, error) {
		return []json.RawMessage{
			json.RawMessage(`{"id":"cand-1","name":"Jane Doe","email":"jane@example.com"}`),
		}, nil
	}
	rpc.handlers[ashby.MethodCandidateInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "applicationIds": []string{"app-1"}}), nil
	}
	rpc.handlers[ashby.MethodApplicationInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{
			"id":                    "app-1",
			"job":                   map[string]any{"id": "job-1"},
			"source":                map[string]any{"id": "src-gem"},
			"creditedToUser":        map[string]any{"id": "user-fixed"},
			"currentInterviewStage": map[string]any{"id": "st-screen"},
		}), nil
	}

	gate := openGate(ashby.MethodApplicationChangeSource, ashby.MethodApplicationChangeStage, ashby.MethodApplicationUpdate)
	o := NewOrchestrator(rpc, gate, NewCreditedResolver(rpc, "user-fixed", "", nil), nil)

	got, err := o.Run(context.Background(), Request{
		Profile:           janeProfile(),
		JobID:             "job-1",
		WriteConfirmation: "relay-test-token",
	}, ashby.AuditContext{})
	require.NoError(t, err)

	assert.Empty(t, got.Aligned)
	assert.Empty(t, rpc.callsTo(ashby.MethodApplicationChangeSource))
	assert.Empty(t, rpc.callsTo(ashby.MethodApplicationChangeStage))
	assert.Empty(t, rpc.callsTo(ashby.MethodApplicationUpdate))
}

func TestRun_TagsEveryStepWithAction(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}
	rpc.searchFn = func(ashby.SearchQuery) ([]json.RawMessage, error) {
		return []json.RawMessage{
			json.RawMessage(`{"id":"cand-1","name":"Jane Doe","email":"jane@example.com"}`),
		}, nil
	}
	rpc.handlers[ashby.MethodCandidateInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "applicationIds": []string{"app-1"}}), nil
	}
	rpc.handlers[ashby.MethodApplicationInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{
			"id":                    "app-1",
			"job":                   map[string]any{"id": "job-1"},
			"source":                map[string]any{"id": "src-old"},
			"creditedToUser":        map[string]any{"id": "user-fixed"},
			"currentInterviewStage": map[string]any{"id": "st-lead"},
		}), nil
	}
	aligner := func(map[string]any) (*ashby.Response, error) { return results(map[string]any{"id": "app-1"}), nil }
	rpc.handlers[ashby.MethodApplicationChangeSource] = aligner
	rpc.handlers[ashby.MethodApplicationChangeStage] = aligner

	gate := openGate(ashby.MethodApplicationChangeSource, ashby.MethodApplicationChangeStage)
	o := NewOrchestrator(rpc, gate, NewCreditedResolver(rpc, "user-fixed", "", nil), nil)

	_, err := o.Run(context.Background(), Request{
		Profile:           janeProfile(),
		JobID:             "job-1",
		WriteConfirmation: "relay-test-token",
	}, ashby.AuditContext{RequestID: "req-1"})
	require.NoError(t, err)

	// Each wire call carries the step that issued it, so upstream audit
	// trails can be read back per step.
	wantActions := map[string][]string{
		ashby.MethodSourceList:              {"resolve_source"},
		ashby.MethodInterviewPlanInfo:       {"pick_stage"},
		ashby.MethodCandidateInfo:           {"list_applications", "fetch_candidate"},
		ashby.MethodApplicationInfo:         {"fetch_application", "fetch_application"},
		ashby.MethodApplicationChangeSource: {"change_source"},
		ashby.MethodApplicationChangeStage:  {"change_stage"},
	}
	for method, want := range wantActions {
		var got []string
		for _, c := range rpc.callsTo(method) {
			got = append(got, c.action)
		}
		assert.Equal(t, want, got, method)
	}
	assert.Equal(t, []string{"search_candidates", "search_candidates"}, rpc.searchActions)
}

func TestRun_ValidationErrors(t *testing.T) {
	o := NewOrchestrator(&fakeRPC{}, openGate(), NewCreditedResolver(&fakeRPC{}, "u", "", nil), nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing job id", Request{Profile: janeProfile()}},
		{"missing profile identity", Request{JobID: "job-1", Profile: Profile{Phone: "+1 555 0100"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tt.req, ashby.AuditContext{})
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeValidation, apperrors.AsAppError(err).Code)
		})
	}
}

func TestRun_WriteGateBlockAborts(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}

	gate := writegate.New(writegate.Policy{Enabled: false}, nil)
	o := NewOrchestrator(rpc, gate, NewCreditedResolver(rpc, "user-fixed", "", nil), nil)

	_, err := o.Run(context.Background(), Request{
		Profile: janeProfile(),
		JobID:   "job-1",
	}, ashby.AuditContext{})
	require.Error(t, err)

	var block *writegate.BlockError
	require.ErrorAs(t, err, &block)
	assert.Equal(t, writegate.ReasonWriteDisabled, block.Reason)
	assert.Empty(t, rpc.callsTo(ashby.MethodCandidateCreate), "blocked call never reaches the wire")
}

func TestRun_RPCFailureAborts(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodSourceList: func(map[string]any) (*ashby.Response, error) {
			return nil, &ashby.APIError{Method: ashby.MethodSourceList, Status: 503, Message: "unavailable"}
		},
	}}
	o := NewOrchestrator(rpc, openGate(), NewCreditedResolver(rpc, "user-fixed", "", nil), nil)

	_, err := o.Run(context.Background(), Request{Profile: janeProfile(), JobID: "job-1"}, ashby.AuditContext{})
	require.Error(t, err)

	var apiErr *ashby.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
	assert.Empty(t, rpc.callsTo(ashby.MethodInterviewPlanInfo), "later steps never run")
}

func TestRun_RawProfileExtraction(t *testing.T) {
	rpc := &fakeRPC{handlers: baseHandlers()}
	rpc.handlers[ashby.MethodCandidateCreate] = func(payload map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1", "name": payload["name"]}), nil
	}
	rpc.handlers[ashby.MethodCandidateInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "cand-1"}), nil
	}
	rpc.handlers[ashby.MethodApplicationCreate] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "app-1"}), nil
	}
	rpc.handlers[ashby.MethodApplicationInfo] = func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"id": "app-1"}), nil
	}

	gate := openGate(ashby.MethodCandidateCreate, ashby.MethodApplicationCreate)
	o := NewOrchestrator(rpc, gate, NewCreditedResolver(rpc, "user-fixed", "", nil), nil)

	raw := json.RawMessage(`{
		"firstName": "Jane",
		"lastName": "Doe",
		"emails": [{"value": "alt@example.com"}, {"value": "jane@example.com", "isPrimary": true}],
		"publicProfileUrl": "https://www.linkedin.com/in/jane-doe/"
	}`)
	got, err := o.Run(context.Background(), Request{
		RawProfile:        raw,
		JobID:             "job-1",
		WriteConfirmation: "relay-test-token",
	}, ashby.AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, "cand-1", got.CandidateID)

	creates := rpc.callsTo(ashby.MethodCandidateCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, "Jane Doe", creates[0].payload["name"])
	assert.Equal(t, "jane@example.com", creates[0].payload["email"], "primary-flagged entry wins")
}

func TestMatchExisting_Priority(t *testing.T) {
	byLinkedIn := summaryJSON(t, `{"id":"li","name":"Other Name","email":"other@x.com","socialLinks":[{"type":"LinkedIn","url":"https://linkedin.com/in/jane-doe"}]}`)
	byEmail := summaryJSON(t, `{"id":"em","name":"Other Name","email":"JANE@example.com"}`)
	byName := summaryJSON(t, `{"id":"nm","name":"jane doe"}`)
	first := summaryJSON(t, `{"id":"first","name":"Unrelated"}`)

	profile := janeProfile()

	tests := []struct {
		name   string
		pool   []*candidex.CandidateSummary
		wantID string
	}{
		{"linkedin key wins", []*candidex.CandidateSummary{first, byEmail, byLinkedIn}, "li"},
		{"email next", []*candidex.CandidateSummary{first, byName, byEmail}, "em"},
		{"name next", []*candidex.CandidateSummary{first, byName}, "nm"},
		{"first result last resort", []*candidex.CandidateSummary{first}, "first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchExisting(tt.pool, profile)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	assert.Nil(t, matchExisting(nil, profile))
}
