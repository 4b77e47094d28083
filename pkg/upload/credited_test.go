package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/atsrelay/pkg/ashby"
)

func usersHandler(users ...userRow) func(map[string]any) (*ashby.Response, error) {
	return func(map[string]any) (*ashby.Response, error) {
		return results(users), nil
	}
}

func apiKeyHandler(title string) func(map[string]any) (*ashby.Response, error) {
	return func(map[string]any) (*ashby.Response, error) {
		return results(map[string]any{"title": title}), nil
	}
}

func TestCreditedResolve_FixedIDShortCircuits(t *testing.T) {
	rpc := &fakeRPC{}
	r := NewCreditedResolver(rpc, "user-fixed", "jane@example.com", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, "user-fixed", id)
	assert.Empty(t, rpc.calls, "fixed id never consults upstream")
}

func TestCreditedResolve_ExactEmailAmongEnabledUsers(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: usersHandler(
			userRow{ID: "u-disabled", Email: "jane@example.com", IsEnabled: false},
			userRow{ID: "u-jane", Email: "JANE@example.com", IsEnabled: true},
		),
	}}
	r := NewCreditedResolver(rpc, "", "jane@example.com", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, "u-jane", id, "disabled users are invisible, matching is case-insensitive")
	assert.Empty(t, rpc.callsTo(ashby.MethodAPIKeyInfo), "email match skips title scoring")
}

func TestCreditedResolve_TitleScoringPicksUniqueWinner(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: usersHandler(
			userRow{ID: "u-jane", FirstName: "Jane", LastName: "Doe", IsEnabled: true},
			userRow{ID: "u-john", FirstName: "John", LastName: "Smith", IsEnabled: true},
		),
		ashby.MethodAPIKeyInfo: apiKeyHandler("Relay key (Jane Doe)"),
	}}
	r := NewCreditedResolver(rpc, "", "", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, "u-jane", id)
}

func TestCreditedResolve_TieYieldsUnresolved(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: usersHandler(
			userRow{ID: "u-a", FirstName: "Jane", LastName: "Doe", IsEnabled: true},
			userRow{ID: "u-b", FirstName: "Jane", LastName: "Roe", IsEnabled: true},
		),
		ashby.MethodAPIKeyInfo: apiKeyHandler("Jane's relay key"),
	}}
	r := NewCreditedResolver(rpc, "", "", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Empty(t, id, "an ambiguous best score is never guessed")
}

func TestCreditedResolve_ZeroScoreYieldsUnresolved(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: usersHandler(
			userRow{ID: "u-john", FirstName: "John", LastName: "Smith", IsEnabled: true},
		),
		ashby.MethodAPIKeyInfo: apiKeyHandler("Production relay"),
	}}
	r := NewCreditedResolver(rpc, "", "", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreditedResolve_SuccessIsCached(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: usersHandler(
			userRow{ID: "u-jane", Email: "jane@example.com", IsEnabled: true},
		),
	}}
	r := NewCreditedResolver(rpc, "", "jane@example.com", nil)

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background(), ashby.AuditContext{})
		require.NoError(t, err)
		assert.Equal(t, "u-jane", id)
	}
	assert.Len(t, rpc.callsTo(ashby.MethodUserList), 1, "resolution is cached for its TTL")
}

func TestCreditedResolve_UserListPaginates(t *testing.T) {
	pages := []*ashby.Response{}
	first := results([]userRow{{ID: "u-a", Email: "a@example.com", IsEnabled: true}})
	first.MoreDataAvailable = true
	first.NextCursor = "p2"
	pages = append(pages, first, results([]userRow{{ID: "u-jane", Email: "jane@example.com", IsEnabled: true}}))

	call := 0
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: func(payload map[string]any) (*ashby.Response, error) {
			resp := pages[call]
			call++
			return resp, nil
		},
	}}
	r := NewCreditedResolver(rpc, "", "jane@example.com", nil)

	id, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, "u-jane", id)

	calls := rpc.callsTo(ashby.MethodUserList)
	require.Len(t, calls, 2)
	assert.Equal(t, "p2", calls[1].payload["cursor"])
}

func TestCreditedResolve_RPCErrorSurfaces(t *testing.T) {
	rpc := &fakeRPC{handlers: map[string]func(map[string]any) (*ashby.Response, error){
		ashby.MethodUserList: func(map[string]any) (*ashby.Response, error) {
			return nil, &ashby.APIError{Method: ashby.MethodUserList, Status: 500, Message: "boom"}
		},
	}}
	r := NewCreditedResolver(rpc, "", "jane@example.com", nil)

	_, err := r.Resolve(context.Background(), ashby.AuditContext{})
	require.Error(t, err)
}

func TestScoreTokens(t *testing.T) {
	tests := []struct {
		name  string
		title string
		user  string
		want  int
	}{
		{"long exact token", "jane relay", "Jane Doe", 3},
		{"short exact token", "bo relay", "Bo Lee", 2},
		{"prefix relation", "janet relay", "Jane Doe", 1},
		{"no overlap", "production key", "Jane Doe", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreTokens(tokenize(tt.title), tokenize(tt.user)))
		})
	}
}
