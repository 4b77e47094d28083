package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/pkg/ashby"
)

// creditedCacheTTL bounds how long a dynamically resolved credited-to user
// is reused before user.list/apiKey.info are consulted again.
const creditedCacheTTL = 5 * time.Minute

// userRow is one row of user.list.
type userRow struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	IsEnabled bool   `json:"isEnabled"`
}

// CreditedResolver resolves the user that upstream attribution is credited
// to. Preference order: a fixed configured id, a cached prior resolution,
// an exact configured-email match among enabled users, then token scoring of
// enabled user names against the API credential's display title. Ambiguity
// resolves to "unresolved" rather than a guess.
type CreditedResolver struct {
	rpc     RPC
	fixedID string
	email   string
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	cachedID string
	cachedAt time.Time
}

// NewCreditedResolver creates a resolver. fixedID and email both come from
// configuration and may be empty.
func NewCreditedResolver(rpc RPC, fixedID, email string, log *zap.Logger) *CreditedResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CreditedResolver{
		rpc:     rpc,
		fixedID: fixedID,
		email:   strings.ToLower(strings.TrimSpace(email)),
		log:     log,
		now:     time.Now,
	}
}

// Resolve returns the credited-to user id, or "" when no unambiguous user
// exists. "" is a valid outcome, not an error; RPC failures are errors.
func (r *CreditedResolver) Resolve(ctx context.Context, audit ashby.AuditContext) (string, error) {
	if r.fixedID != "" {
		return r.fixedID, nil
	}

	r.mu.Lock()
	if r.cachedID != "" && r.now().Sub(r.cachedAt) <= creditedCacheTTL {
		id := r.cachedID
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	users, err := r.listEnabledUsers(ctx, audit)
	if err != nil {
		return "", err
	}

	id, err := r.pick(ctx, users, audit)
	if err != nil {
		return "", err
	}
	if id != "" {
		r.mu.Lock()
		r.cachedID = id
		r.cachedAt = r.now()
		r.mu.Unlock()
	}
	return id, nil
}

func (r *CreditedResolver) pick(ctx context.Context, users []userRow, audit ashby.AuditContext) (string, error) {
	if r.email != "" {
		for _, u := range users {
			if strings.ToLower(strings.TrimSpace(u.Email)) == r.email {
				return u.ID, nil
			}
		}
	}

	title, err := r.apiKeyTitle(ctx, audit)
	if err != nil {
		return "", err
	}
	titleTokens := tokenize(title)
	if len(titleTokens) == 0 {
		return "", nil
	}

	best, bestScore, tied := "", 0, false
	for _, u := range users {
		score := scoreTokens(titleTokens, tokenize(u.FirstName+" "+u.LastName))
		switch {
		case score > bestScore:
			best, bestScore, tied = u.ID, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore <= 0 || tied {
		r.log.Debug("credited-to user unresolved",
			zap.String("request_id", audit.RequestID),
			zap.Int("best_score", bestScore),
			zap.Bool("tied", tied))
		return "", nil
	}
	return best, nil
}

// listEnabledUsers pages through user.list and keeps enabled users only.
func (r *CreditedResolver) listEnabledUsers(ctx context.Context, audit ashby.AuditContext) ([]userRow, error) {
	var (
		users  []userRow
		cursor string
	)
	for {
		resp, err := r.rpc.Call(ctx, ashby.MethodUserList, map[string]any{"cursor": cursor}, audit, nil)
		if err != nil {
			return nil, err
		}

		var rows []userRow
		if len(resp.Results) > 0 {
			if err := json.Unmarshal(resp.Results, &rows); err != nil {
				return nil, fmt.Errorf("decode user.list results: %w", err)
			}
		}
		for _, u := range rows {
			if u.IsEnabled && u.ID != "" {
				users = append(users, u)
			}
		}

		if !resp.MoreDataAvailable || resp.NextCursor == "" {
			return users, nil
		}
		cursor = resp.NextCursor
	}
}

func (r *CreditedResolver) apiKeyTitle(ctx context.Context, audit ashby.AuditContext) (string, error) {
	resp, err := r.rpc.Call(ctx, ashby.MethodAPIKeyInfo, nil, audit, nil)
	if err != nil {
		return "", err
	}
	var info struct {
		Title string `json:"title"`
	}
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &info); err != nil {
			return "", fmt.Errorf("decode apiKey.info results: %w", err)
		}
	}
	return info.Title, nil
}

// tokenize lowercases and splits on non-alphanumeric boundaries.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// scoreTokens scores a user's name tokens against the credential title
// tokens: +3 per exact match of length >= 4, +2 for shorter exact matches,
// +1 for a prefix relationship in either direction.
func scoreTokens(titleTokens, nameTokens []string) int {
	score := 0
	for _, t := range titleTokens {
		for _, n := range nameTokens {
			switch {
			case t == n && len(t) >= 4:
				score += 3
			case t == n:
				score += 2
			case strings.HasPrefix(t, n) || strings.HasPrefix(n, t):
				score++
			}
		}
	}
	return score
}
