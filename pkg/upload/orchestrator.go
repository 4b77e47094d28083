// Package upload orchestrates pushing a sourced profile into the upstream
// ATS: resolve attribution, pick a stage, find or create the candidate and
// application, and align an existing application with the desired state.
//
// Every step is idempotent against re-invocation and every mutating call
// passes through the write-safety gate. A step's RPC failure aborts the
// whole run with that error; intermediate creates are deliberately left in
// place because the upstream has no transaction spanning these calls.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
	"github.com/3leaps/atsrelay/pkg/stage"
	"github.com/3leaps/atsrelay/pkg/writegate"
)

// RPC is the slice of the upstream client the orchestrator needs.
type RPC interface {
	Call(ctx context.Context, method string, payload map[string]any, audit ashby.AuditContext, opts *ashby.CallOptions) (*ashby.Response, error)
	SearchCandidates(ctx context.Context, q ashby.SearchQuery, audit ashby.AuditContext) ([]json.RawMessage, error)
}

// Request is one upload order. Profile may be supplied directly or as a raw
// object to extract; JobID names the target job upstream.
type Request struct {
	Profile    Profile         `json:"profile"`
	RawProfile json.RawMessage `json:"rawProfile,omitempty"`
	JobID      string          `json:"jobId"`

	// WriteConfirmation is passed to the gate and forwarded upstream on
	// every mutating call in this run.
	WriteConfirmation string `json:"writeConfirmation,omitempty"`
}

// Result reports what the run did and where everything ended up.
type Result struct {
	CandidateID        string       `json:"candidateId"`
	CandidateCreated   bool         `json:"candidateCreated"`
	ProfileURL         string       `json:"profileUrl,omitempty"`
	ApplicationID      string       `json:"applicationId"`
	ApplicationCreated bool         `json:"applicationCreated"`
	JobID              string       `json:"jobId"`
	SourceID           string       `json:"sourceId,omitempty"`
	CreditedToUserID   string       `json:"creditedToUserId,omitempty"`
	Stage              *stage.Stage `json:"stage,omitempty"`
	StageStrategy      string       `json:"stageStrategy"`

	// Aligned lists the mutations applied to a pre-existing application.
	Aligned []string `json:"aligned,omitempty"`
}

// Orchestrator runs uploads. Safe for concurrent use.
type Orchestrator struct {
	rpc      RPC
	gate     *writegate.Gate
	credited *CreditedResolver
	log      *zap.Logger
}

// NewOrchestrator assembles an orchestrator.
func NewOrchestrator(rpc RPC, gate *writegate.Gate, credited *CreditedResolver, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{rpc: rpc, gate: gate, credited: credited, log: log}
}

// Run executes the upload steps in order.
func (o *Orchestrator) Run(ctx context.Context, req Request, audit ashby.AuditContext) (*Result, error) {
	profile := req.Profile
	if profile == (Profile{}) && len(req.RawProfile) > 0 {
		profile = ExtractProfile(req.RawProfile)
	}

	if strings.TrimSpace(req.JobID) == "" {
		return nil, errors.NewValidationError("upload requires a target job id")
	}
	if profile.Name == "" && profile.LinkedInKey() == "" {
		return nil, errors.NewValidationError("upload requires a profile name or LinkedIn URL")
	}

	sourceID, err := o.resolveSource(ctx, audit)
	if err != nil {
		return nil, err
	}

	creditedID, err := o.credited.Resolve(ctx, audit.WithAction("resolve_credited_to"))
	if err != nil {
		return nil, err
	}

	selection, err := o.pickStage(ctx, req.JobID, audit)
	if err != nil {
		return nil, err
	}

	candidate, candidateCreated, err := o.findOrCreateCandidate(ctx, profile, sourceID, creditedID, audit, req.WriteConfirmation)
	if err != nil {
		return nil, err
	}

	app, appCreated, err := o.findOrCreateApplication(ctx, candidate.ID, req.JobID, sourceID, creditedID, selection, audit, req.WriteConfirmation)
	if err != nil {
		return nil, err
	}

	var aligned []string
	if !appCreated {
		aligned, err = o.alignApplication(ctx, app, sourceID, creditedID, selection, audit, req.WriteConfirmation)
		if err != nil {
			return nil, err
		}
	}

	final, err := o.fetchApplication(ctx, app.ID, audit)
	if err != nil {
		return nil, err
	}

	profileURL := candidate.ProfileURL
	if profileURL == "" {
		if refetched, err := o.fetchCandidate(ctx, candidate.ID, audit); err == nil && refetched != nil {
			profileURL = refetched.ProfileURL
		} else if err != nil {
			return nil, err
		}
	}

	result := &Result{
		CandidateID:        candidate.ID,
		CandidateCreated:   candidateCreated,
		ProfileURL:         profileURL,
		ApplicationID:      final.ID,
		ApplicationCreated: appCreated,
		JobID:              req.JobID,
		SourceID:           sourceID,
		CreditedToUserID:   creditedID,
		Stage:              selection.Stage,
		StageStrategy:      selection.Strategy,
		Aligned:            aligned,
	}

	o.log.Info("upload finished",
		zap.String("request_id", audit.RequestID),
		zap.String("candidate_id", result.CandidateID),
		zap.Bool("candidate_created", result.CandidateCreated),
		zap.String("application_id", result.ApplicationID),
		zap.Bool("application_created", result.ApplicationCreated),
		zap.Strings("aligned", result.Aligned))
	return result, nil
}

// write is the single chokepoint for mutating calls: gate first, then RPC
// with the confirmation forwarded upstream.
func (o *Orchestrator) write(ctx context.Context, method string, payload map[string]any, audit ashby.AuditContext, confirmation string) (*ashby.Response, error) {
	if err := o.gate.Check(method, payload, audit, &writegate.CheckOptions{Confirmation: confirmation}); err != nil {
		return nil, err
	}
	var opts *ashby.CallOptions
	if confirmation != "" {
		opts = &ashby.CallOptions{WriteConfirmation: confirmation}
	}
	return o.rpc.Call(ctx, method, payload, audit, opts)
}

func (o *Orchestrator) resolveSource(ctx context.Context, audit ashby.AuditContext) (string, error) {
	resp, err := o.rpc.Call(ctx, ashby.MethodSourceList, nil, audit.WithAction("resolve_source"), nil)
	if err != nil {
		return "", err
	}
	var sources []Source
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &sources); err != nil {
			return "", fmt.Errorf("decode source.list results: %w", err)
		}
	}
	return resolveSourceID(sources), nil
}

func (o *Orchestrator) pickStage(ctx context.Context, jobID string, audit ashby.AuditContext) (stage.Selection, error) {
	resp, err := o.rpc.Call(ctx, ashby.MethodInterviewPlanInfo, map[string]any{"jobId": jobID}, audit.WithAction("pick_stage"), nil)
	if err != nil {
		return stage.Selection{}, err
	}
	stages, err := decodeStages(resp.Results)
	if err != nil {
		return stage.Selection{}, err
	}
	return stage.Pick(stages), nil
}

// decodeStages accepts the interview-plan shapes observed upstream: a plain
// stage array, an object carrying a "stages" array, or an array of plan
// objects each carrying one.
func decodeStages(results json.RawMessage) ([]stage.Stage, error) {
	if len(results) == 0 {
		return nil, nil
	}

	var direct []stage.Stage
	if err := json.Unmarshal(results, &direct); err == nil && stagesLookValid(direct) {
		return direct, nil
	}

	var wrapped struct {
		Stages []stage.Stage `json:"stages"`
	}
	if err := json.Unmarshal(results, &wrapped); err == nil && len(wrapped.Stages) > 0 {
		return wrapped.Stages, nil
	}

	var plans []struct {
		Stages []stage.Stage `json:"stages"`
	}
	if err := json.Unmarshal(results, &plans); err == nil {
		var all []stage.Stage
		for _, p := range plans {
			all = append(all, p.Stages...)
		}
		return all, nil
	}

	return nil, fmt.Errorf("unrecognized interview plan shape")
}

// stagesLookValid guards the direct-array decode: an array of plan objects
// also decodes into []stage.Stage, but with empty ids and titles.
func stagesLookValid(stages []stage.Stage) bool {
	if len(stages) == 0 {
		return false
	}
	for _, s := range stages {
		if s.ID != "" && s.Title != "" {
			return true
		}
	}
	return false
}

// findOrCreateCandidate searches upstream by email and name, matches the
// union by LinkedIn key, then email, then name, then first result, and
// creates the candidate when nothing matches.
func (o *Orchestrator) findOrCreateCandidate(ctx context.Context, profile Profile, sourceID, creditedID string, audit ashby.AuditContext, confirmation string) (*candidex.CandidateSummary, bool, error) {
	existing, err := o.searchExisting(ctx, profile, audit)
	if err != nil {
		return nil, false, err
	}
	if match := matchExisting(existing, profile); match != nil {
		o.log.Debug("matched existing candidate",
			zap.String("request_id", audit.RequestID),
			zap.String("candidate_id", match.ID))
		return match, false, nil
	}

	payload := map[string]any{
		"name":             profile.Name,
		"email":            profile.Email,
		"phoneNumber":      profile.Phone,
		"linkedInUrl":      profile.LinkedInURL,
		"sourceId":         sourceID,
		"creditedToUserId": creditedID,
	}
	resp, err := o.write(ctx, ashby.MethodCandidateCreate, payload, audit.WithAction("create_candidate"), confirmation)
	if err != nil {
		return nil, false, err
	}

	created, ok := candidex.ProjectCandidate(resp.Results)
	if !ok {
		return nil, false, fmt.Errorf("candidate.create returned no usable candidate")
	}
	return created, true, nil
}

// searchExisting unions the email-search and name-search result sets,
// deduplicated by id in arrival order.
func (o *Orchestrator) searchExisting(ctx context.Context, profile Profile, audit ashby.AuditContext) ([]*candidex.CandidateSummary, error) {
	var queries []ashby.SearchQuery
	if profile.Email != "" {
		queries = append(queries, ashby.SearchQuery{Email: profile.Email})
	}
	if profile.Name != "" {
		queries = append(queries, ashby.SearchQuery{Name: profile.Name})
	}

	seen := make(map[string]struct{})
	var union []*candidex.CandidateSummary
	for _, q := range queries {
		rows, err := o.rpc.SearchCandidates(ctx, q, audit.WithAction("search_candidates"))
		if err != nil {
			return nil, err
		}
		for _, raw := range rows {
			summary, ok := candidex.ProjectCandidate(raw)
			if !ok {
				continue
			}
			if _, dup := seen[summary.ID]; dup {
				continue
			}
			seen[summary.ID] = struct{}{}
			union = append(union, summary)
		}
	}
	return union, nil
}

// matchExisting applies the match priority over the search union: exact
// LinkedIn key, exact email (case-insensitive), exact name
// (case-insensitive), then the first result.
func matchExisting(candidates []*candidex.CandidateSummary, profile Profile) *candidex.CandidateSummary {
	if len(candidates) == 0 {
		return nil
	}

	if key := profile.LinkedInKey(); key != "" {
		for _, c := range candidates {
			for _, k := range c.LinkedInKeys {
				if k == key {
					return c
				}
			}
		}
	}

	if profile.Email != "" {
		want := strings.ToLower(profile.Email)
		for _, c := range candidates {
			if strings.ToLower(c.Email) == want {
				return c
			}
		}
	}

	if profile.Name != "" {
		want := strings.ToLower(strings.TrimSpace(profile.Name))
		for _, c := range candidates {
			if strings.ToLower(strings.TrimSpace(c.Name)) == want {
				return c
			}
		}
	}

	return candidates[0]
}

// applicationRow is the duck-typed application.info shape.
type applicationRow struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Job    struct {
		ID string `json:"id"`
	} `json:"job"`
	RawJobID string `json:"jobId"`
	Source   struct {
		ID string `json:"id"`
	} `json:"source"`
	CreditedToUser struct {
		ID string `json:"id"`
	} `json:"creditedToUser"`
	CurrentInterviewStage struct {
		ID string `json:"id"`
	} `json:"currentInterviewStage"`
}

func (a applicationRow) jobID() string {
	if a.Job.ID != "" {
		return a.Job.ID
	}
	return a.RawJobID
}

// findOrCreateApplication scans the candidate's known applications for one
// against jobID and creates one, seeded with whatever attribution resolved,
// when none exists.
func (o *Orchestrator) findOrCreateApplication(ctx context.Context, candidateID, jobID, sourceID, creditedID string, selection stage.Selection, audit ashby.AuditContext, confirmation string) (*applicationRow, bool, error) {
	appIDs, err := o.candidateApplicationIDs(ctx, candidateID, audit)
	if err != nil {
		return nil, false, err
	}

	for _, appID := range appIDs {
		app, err := o.fetchApplication(ctx, appID, audit)
		if err != nil {
			return nil, false, err
		}
		if app.jobID() == jobID {
			return app, false, nil
		}
	}

	payload := map[string]any{
		"candidateId":      candidateID,
		"jobId":            jobID,
		"sourceId":         sourceID,
		"creditedToUserId": creditedID,
	}
	if selection.Stage != nil {
		payload["interviewStageId"] = selection.Stage.ID
	}
	resp, err := o.write(ctx, ashby.MethodApplicationCreate, payload, audit.WithAction("create_application"), confirmation)
	if err != nil {
		return nil, false, err
	}

	var app applicationRow
	if err := json.Unmarshal(resp.Results, &app); err != nil || app.ID == "" {
		return nil, false, fmt.Errorf("application.create returned no usable application")
	}
	return &app, true, nil
}

func (o *Orchestrator) candidateApplicationIDs(ctx context.Context, candidateID string, audit ashby.AuditContext) ([]string, error) {
	resp, err := o.rpc.Call(ctx, ashby.MethodCandidateInfo, map[string]any{"id": candidateID}, audit.WithAction("list_applications"), nil)
	if err != nil {
		return nil, err
	}

	var info struct {
		ApplicationIDs []string `json:"applicationIds"`
		Applications   []struct {
			ID string `json:"id"`
		} `json:"applications"`
	}
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &info); err != nil {
			return nil, fmt.Errorf("decode candidate.info results: %w", err)
		}
	}

	ids := info.ApplicationIDs
	for _, a := range info.Applications {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (o *Orchestrator) fetchApplication(ctx context.Context, appID string, audit ashby.AuditContext) (*applicationRow, error) {
	resp, err := o.rpc.Call(ctx, ashby.MethodApplicationInfo, map[string]any{"applicationId": appID}, audit.WithAction("fetch_application"), nil)
	if err != nil {
		return nil, err
	}
	var app applicationRow
	if err := json.Unmarshal(resp.Results, &app); err != nil || app.ID == "" {
		return nil, fmt.Errorf("decode application.info results for %s", appID)
	}
	return &app, nil
}

func (o *Orchestrator) fetchCandidate(ctx context.Context, candidateID string, audit ashby.AuditContext) (*candidex.CandidateSummary, error) {
	resp, err := o.rpc.Call(ctx, ashby.MethodCandidateInfo, map[string]any{"id": candidateID}, audit.WithAction("fetch_candidate"), nil)
	if err != nil {
		return nil, err
	}
	summary, ok := candidex.ProjectCandidate(resp.Results)
	if !ok {
		return nil, nil
	}
	return summary, nil
}

// alignApplication brings a pre-existing application in line with the
// resolved attribution and stage. Each difference is its own gated mutation;
// the credited-to update additionally requires application.update to be
// allowlisted, because it rewrites a broader record than the dedicated
// change methods.
func (o *Orchestrator) alignApplication(ctx context.Context, app *applicationRow, sourceID, creditedID string, selection stage.Selection, audit ashby.AuditContext, confirmation string) ([]string, error) {
	var aligned []string

	if sourceID != "" && app.Source.ID != sourceID {
		_, err := o.write(ctx, ashby.MethodApplicationChangeSource, map[string]any{
			"applicationId": app.ID,
			"sourceId":      sourceID,
		}, audit.WithAction("change_source"), confirmation)
		if err != nil {
			return aligned, err
		}
		aligned = append(aligned, "source")
	}

	if creditedID != "" && app.CreditedToUser.ID != creditedID && o.gate.Allows(ashby.MethodApplicationUpdate) {
		_, err := o.write(ctx, ashby.MethodApplicationUpdate, map[string]any{
			"applicationId":    app.ID,
			"creditedToUserId": creditedID,
		}, audit.WithAction("update_credited_to"), confirmation)
		if err != nil {
			return aligned, err
		}
		aligned = append(aligned, "credited_to")
	}

	if selection.Stage != nil && app.CurrentInterviewStage.ID != selection.Stage.ID {
		_, err := o.write(ctx, ashby.MethodApplicationChangeStage, map[string]any{
			"applicationId":    app.ID,
			"interviewStageId": selection.Stage.ID,
		}, audit.WithAction("change_stage"), confirmation)
		if err != nil {
			return aligned, err
		}
		aligned = append(aligned, "stage")
	}

	return aligned, nil
}
