package invite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/repository"
)

type memRepo struct {
	byToken   map[string]*Invite
	members   map[string]Redemption // familyID/userID
	conflicts int                   // Create calls to reject with ErrConflict
}

func newMemRepo() *memRepo {
	return &memRepo{byToken: map[string]*Invite{}, members: map[string]Redemption{}}
}

func (m *memRepo) Create(_ context.Context, inv *Invite) error {
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrConflict
	}
	if _, ok := m.byToken[inv.Token]; ok {
		return repository.ErrConflict
	}
	cp := *inv
	m.byToken[inv.Token] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, token string) (*Invite, error) {
	inv, ok := m.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memRepo) ListByFamily(_ context.Context, familyID string) ([]Invite, error) {
	var out []Invite
	for _, inv := range m.byToken {
		if inv.FamilyID == familyID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memRepo) Touch(_ context.Context, token string, at time.Time) error {
	m.byToken[token].LastCheckedAt = &at
	return nil
}

func (m *memRepo) MarkExpired(_ context.Context, token string, _ time.Time) (bool, error) {
	inv := m.byToken[token]
	if inv.Status != StatusActive {
		return false, nil
	}
	inv.Status = StatusExpired
	return true, nil
}

func (m *memRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, inv := range m.byToken {
		if inv.Status == StatusActive && inv.Expired(now) {
			inv.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Redeem(_ context.Context, r Redemption) (*Invite, error) {
	inv, ok := m.byToken[r.Token]
	if !ok || inv.Status != StatusActive || inv.Expired(r.At) {
		return nil, repository.ErrConflict
	}
	inv.Status = StatusUsed
	inv.UsedBy = r.UserID
	inv.UsedAt = &r.At
	m.members[inv.FamilyID+"/"+r.UserID] = r
	cp := *inv
	return &cp, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *memRepo, *clock) {
	t.Helper()
	repo := newMemRepo()
	c := &clock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	return NewService(repo, "https://fam.example/").WithClock(c.now), repo, c
}

func TestIssue_ThenValidate(t *testing.T) {
	ctx := context.Background()
	svc, repo, c := newService(t)

	issued, err := svc.Issue(ctx, IssueRequest{
		FamilyID:   "f1",
		FamilyName: "Rossi",
		Label:      "cousins",
		Expiration: Expiration{Days: 7},
		CreatedBy:  "u1",
	})
	require.NoError(t, err)
	require.Len(t, issued.Invite.Token, 10)
	require.Equal(t, "https://fam.example/invite/"+issued.Invite.Token, issued.URL)
	require.Equal(t, StatusActive, issued.Invite.Status)
	require.Equal(t, c.t.Add(7*24*time.Hour), *issued.Invite.ExpiresAt)

	v, err := svc.Validate(ctx, issued.Invite.Token)
	require.NoError(t, err)
	require.Equal(t, "f1", v.FamilyID)
	require.Equal(t, "Rossi", v.FamilyName)
	require.NotNil(t, repo.byToken[v.Token].LastCheckedAt)

	// A pasted URL works as well.
	_, err = svc.Validate(ctx, " "+issued.URL+"/ ")
	require.NoError(t, err)

	c.t = c.t.Add(8 * 24 * time.Hour)
	_, err = svc.Validate(ctx, issued.Invite.Token)
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, StatusExpired, repo.byToken[issued.Invite.Token].Status)

	// Once persisted as expired it reports as no longer active.
	_, err = svc.Validate(ctx, issued.Invite.Token)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestIssue_Defaults(t *testing.T) {
	ctx := context.Background()
	svc, _, c := newService(t)

	issued, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1"})
	require.NoError(t, err)
	require.Equal(t, "Family", issued.Invite.FamilyName)
	require.Equal(t, "Family invite", issued.Invite.Label)
	require.Equal(t, c.t.Add(3*24*time.Hour), *issued.Invite.ExpiresAt)

	never, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1", Expiration: Expiration{Never: true}})
	require.NoError(t, err)
	require.Nil(t, never.Invite.ExpiresAt)

	_, err = svc.Issue(ctx, IssueRequest{FamilyID: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	repo.conflicts = 2
	issued, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1"})
	require.NoError(t, err)
	require.Contains(t, repo.byToken, issued.Invite.Token)

	repo.conflicts = maxIssueAttempts
	_, err = svc.Issue(ctx, IssueRequest{FamilyID: "f1"})
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestValidate_NotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Validate(context.Background(), "deadbeef00")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Validate(context.Background(), "   ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	issued, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1", FamilyName: "Rossi"})
	require.NoError(t, err)

	used, err := svc.Finalize(ctx, FinalizeRequest{
		Token:    issued.URL,
		UserID:   "u2",
		Email:    " Zia@Example.com ",
		Username: "zia",
	})
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
	require.Equal(t, "u2", used.UsedBy)

	m := repo.members["f1/u2"]
	require.Equal(t, "zia@example.com", m.Email)
	require.Equal(t, "zia", m.DisplayName)

	_, err = svc.Finalize(ctx, FinalizeRequest{Token: issued.Invite.Token, UserID: "u3"})
	require.ErrorIs(t, err, ErrNotActive)
	require.Len(t, repo.members, 1)
}

// racingRepo loses every redemption, as if another request won between the
// read and the conditional write.
type racingRepo struct{ *memRepo }

func (racingRepo) Redeem(context.Context, Redemption) (*Invite, error) {
	return nil, repository.ErrConflict
}

func TestFinalize_LosingRace(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(racingRepo{repo}, "https://fam.example")

	issued, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1"})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, FinalizeRequest{Token: issued.Invite.Token, UserID: "u2"})
	require.ErrorIs(t, err, ErrNotActive)
	require.Empty(t, repo.members)
}

func TestFinalize_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Finalize(context.Background(), FinalizeRequest{UserID: "u1"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Finalize(context.Background(), FinalizeRequest{Token: "abc"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	svc, repo, c := newService(t)

	a, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1", Expiration: Expiration{Days: 1}})
	require.NoError(t, err)
	b, err := svc.Issue(ctx, IssueRequest{FamilyID: "f1", Expiration: Expiration{Never: true}})
	require.NoError(t, err)

	c.t = c.t.Add(48 * time.Hour)
	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, StatusExpired, repo.byToken[a.Invite.Token].Status)
	require.Equal(t, StatusActive, repo.byToken[b.Invite.Token].Status)
}

func TestShareLink(t *testing.T) {
	require.Equal(t,
		"https://wa.me/?text=Join%20today's%20Family%20Connections%20puzzle%3A%20https%3A%2F%2Ffam.example%2Finvite%2Fabc",
		ShareLink("https://fam.example/invite/abc"))
}

func TestSanitizeToken(t *testing.T) {
	cases := map[string]string{
		"abc123":                            "abc123",
		"  abc123 ":                         "abc123",
		"https://fam.example/invite/abc123": "abc123",
		"https://fam.example/invite/abc123/": "abc123",
		"https://fam.example/invite/abc?x=1": "abc",
		"":                                   "",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeToken(in), in)
	}
}

func TestParseExpiration(t *testing.T) {
	e, err := ParseExpiration("")
	require.NoError(t, err)
	require.Equal(t, DefaultExpiration, e)

	e, err = ParseExpiration("Never")
	require.NoError(t, err)
	require.True(t, e.Never)

	e, err = ParseExpiration("14")
	require.NoError(t, err)
	require.Equal(t, 14, e.Days)

	for _, bad := range []string{"0", "-2", "soon", "1.5"} {
		_, err := ParseExpiration(bad)
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}

	var body struct {
		A Expiration `json:"a"`
		B Expiration `json:"b"`
		C Expiration `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":7,"b":"never","c":"30"}`), &body))
	require.Equal(t, 7, body.A.Days)
	require.True(t, body.B.Never)
	require.Equal(t, 30, body.C.Days)
}
