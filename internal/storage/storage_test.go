package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/invite"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// newTestDB opens a migrated database in a temp dir.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func seedFamily(t *testing.T, db *DB, id string) {
	t.Helper()
	err := NewFamilyRepository(db).CreateWithOwner(context.Background(),
		&family.Family{ID: id, Name: "Rossi", CreatedBy: "owner", CreatedAt: t0, UpdatedAt: t0},
		&family.Member{FamilyID: id, UserID: "owner", Email: "owner@example.com", DisplayName: "Owner", Role: family.RoleOwner, JoinedAt: t0},
	)
	require.NoError(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

func TestTimeEncoding(t *testing.T) {
	in := time.Date(2026, 3, 1, 9, 30, 0, 123, time.FixedZone("CET", 3600))
	require.True(t, in.Equal(parseTime(formatTime(in))))
	require.Less(t, formatTime(t0), formatTime(t0.Add(time.Nanosecond)))
	require.True(t, parseTime("").IsZero())
}

func TestPuzzleRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedFamily(t, db, "fam1")
	repo := NewPuzzleRepository(db)

	p := &puzzle.Puzzle{
		ID: "p1", FamilyID: "fam1", Title: "Sunday", Status: puzzle.StatusDraft,
		Groups:    []puzzle.Group{{Title: "Cats", Hint: "meow", Cards: []string{"Tom", "Felix"}}},
		CreatedBy: "owner", CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, repo.Create(ctx, p))
	require.ErrorIs(t, repo.Create(ctx, p), repository.ErrConflict)

	orphan := *p
	orphan.ID, orphan.FamilyID = "p2", "missing"
	require.ErrorIs(t, repo.Create(ctx, &orphan), repository.ErrNotFound)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, p.Groups, got.Groups)
	require.True(t, got.DropsAt.IsZero())
	require.True(t, t0.Equal(got.CreatedAt))

	drops := t0.Add(24 * time.Hour)
	got.Status, got.DropsAt = puzzle.StatusPublished, drops
	require.NoError(t, repo.Update(ctx, got, puzzle.StatusDraft))
	// The stored status moved on, so a second draft-to-published write loses.
	require.ErrorIs(t, repo.Update(ctx, got, puzzle.StatusDraft), repository.ErrConflict)

	missing := *got
	missing.ID = "nope"
	require.ErrorIs(t, repo.Update(ctx, &missing, puzzle.StatusDraft), repository.ErrNotFound)

	list, err := repo.ListByFamily(ctx, "fam1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, puzzle.StatusPublished, list[0].Status)
	require.True(t, drops.Equal(list[0].DropsAt))

	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFamilyRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedFamily(t, db, "fam1")
	repo := NewFamilyRepository(db)

	f, err := repo.Get(ctx, "fam1")
	require.NoError(t, err)
	require.Equal(t, "Rossi", f.Name)

	m, err := repo.GetMember(ctx, "fam1", "owner")
	require.NoError(t, err)
	require.Equal(t, family.RoleOwner, m.Role)

	_, err = repo.GetMember(ctx, "fam1", "stranger")
	require.ErrorIs(t, err, repository.ErrNotFound)

	mine, err := repo.ListForUser(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	none, err := repo.ListForUser(ctx, "stranger")
	require.NoError(t, err)
	require.Empty(t, none)
}

func newInviteService(t *testing.T, db *DB, now *time.Time) *invite.Service {
	t.Helper()
	return invite.NewService(NewInviteRepository(db), "https://fam.example").
		WithClock(func() time.Time { return *now })
}

func TestInvite_FinalizeOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := t0
	svc := newInviteService(t, db, &now)

	issued, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam-new", FamilyName: "Bianchi", CreatedBy: "owner"})
	require.NoError(t, err)

	v, err := svc.Validate(ctx, issued.URL+"?utm=x")
	require.NoError(t, err)
	require.Equal(t, "Bianchi", v.FamilyName)

	used, err := svc.Finalize(ctx, invite.FinalizeRequest{Token: issued.Invite.Token, UserID: "u1", Email: "Zia@Example.com"})
	require.NoError(t, err)
	require.Equal(t, "fam-new", used.FamilyID)

	_, err = svc.Finalize(ctx, invite.FinalizeRequest{Token: issued.Invite.Token, UserID: "u2", Email: "x@example.com"})
	require.ErrorIs(t, err, invite.ErrNotActive)

	fams := NewFamilyRepository(db)
	f, err := fams.Get(ctx, "fam-new")
	require.NoError(t, err)
	require.Equal(t, "Bianchi", f.Name)
	require.Equal(t, "owner", f.CreatedBy)

	members, err := fams.ListMembers(ctx, "fam-new")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "u1", members[0].UserID)
	require.Equal(t, "zia@example.com", members[0].Email)
	require.Equal(t, "zia@example.com", members[0].DisplayName)
	require.Equal(t, family.RoleMember, members[0].Role)

	stored, err := NewInviteRepository(db).Get(ctx, issued.Invite.Token)
	require.NoError(t, err)
	require.Equal(t, invite.StatusUsed, stored.Status)
	require.Equal(t, "u1", stored.UsedBy)
	require.NotNil(t, stored.UsedAt)
}

func TestInvite_RedeemKeepsExistingRole(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedFamily(t, db, "fam1")
	now := t0
	svc := newInviteService(t, db, &now)

	issued, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam1", FamilyName: "Rossi-Verdi"})
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, invite.FinalizeRequest{Token: issued.Invite.Token, UserID: "owner", DisplayName: "Mamma"})
	require.NoError(t, err)

	fams := NewFamilyRepository(db)
	m, err := fams.GetMember(ctx, "fam1", "owner")
	require.NoError(t, err)
	require.Equal(t, family.RoleOwner, m.Role)
	require.Equal(t, "Mamma", m.DisplayName)

	f, err := fams.Get(ctx, "fam1")
	require.NoError(t, err)
	require.Equal(t, "Rossi-Verdi", f.Name)

	members, err := fams.ListMembers(ctx, "fam1")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestInvite_ConcurrentFinalize(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := t0
	svc := newInviteService(t, db, &now)

	issued, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam-race"})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Finalize(ctx, invite.FinalizeRequest{
				Token:  issued.Invite.Token,
				UserID: "u" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, invite.ErrNotActive)
	}
	require.Equal(t, 1, wins)

	members, err := NewFamilyRepository(db).ListMembers(ctx, "fam-race")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestInvite_Expiry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInviteRepository(db)
	now := t0
	svc := newInviteService(t, db, &now)

	short, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam1", Expiration: invite.Expiration{Days: 1}})
	require.NoError(t, err)
	long, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam1", Expiration: invite.Expiration{Never: true}})
	require.NoError(t, err)
	require.Nil(t, long.Invite.ExpiresAt)

	now = t0.Add(48 * time.Hour)

	// The repository refuses on its own, even without the service check.
	_, err = repo.Redeem(ctx, invite.Redemption{Token: short.Invite.Token, UserID: "u1", At: now})
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = svc.Validate(ctx, short.Invite.Token)
	require.ErrorIs(t, err, invite.ErrExpired)
	stored, err := repo.Get(ctx, short.Invite.Token)
	require.NoError(t, err)
	require.Equal(t, invite.StatusExpired, stored.Status)

	_, err = svc.Validate(ctx, short.Invite.Token)
	require.ErrorIs(t, err, invite.ErrNotActive)

	_, err = svc.Validate(ctx, long.Invite.Token)
	require.NoError(t, err)
}

func TestInvite_ExpireStaleAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInviteRepository(db)
	now := t0
	svc := newInviteService(t, db, &now)

	for i := 1; i <= 3; i++ {
		_, err := svc.Issue(ctx, invite.IssueRequest{FamilyID: "fam1", Expiration: invite.Expiration{Days: i}})
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	n, err := repo.ExpireStale(ctx, t0.Add(36*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = repo.ExpireStale(ctx, t0.Add(36*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	list, err := svc.List(ctx, "fam1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.True(t, list[0].CreatedAt.After(list[2].CreatedAt))
	require.Equal(t, invite.StatusExpired, list[2].Status)

	dup := list[0]
	require.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrConflict)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestResultRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedFamily(t, db, "fam1")
	require.NoError(t, NewPuzzleRepository(db).Create(ctx, &puzzle.Puzzle{
		ID: "p1", FamilyID: "fam1", Title: "x", Status: puzzle.StatusPublished,
		CreatedBy: "owner", CreatedAt: t0, UpdatedAt: t0,
	}))
	repo := NewResultRepository(db)

	a := &game.Result{ID: "s1", PuzzleID: "p1", PlayerName: "Nonna", Attempts: 5, Strikes: 1, Solved: true, Duration: 61000, SolvedGroups: 4, CompletedAt: t0}
	b := &game.Result{ID: "s2", PuzzleID: "p1", PlayerName: "Zio", Attempts: 8, Strikes: 4, Duration: 90000, SolvedGroups: 2, CompletedAt: t0.Add(time.Minute)}

	ok, err := repo.InsertResult(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.InsertResult(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)

	retry := *a
	retry.PlayerName = "Someone else"
	ok, err = repo.InsertResult(ctx, &retry)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.GetResult(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Nonna", stored.PlayerName)
	_, err = repo.GetResult(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.ListResults(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "s1", got[0].ID)
	require.True(t, got[0].Solved)
	require.False(t, got[1].Solved)
	require.True(t, t0.Equal(got[0].CompletedAt))

	empty, err := repo.ListResults(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewUserRepository(db)

	u, err := repo.EnsureUser(ctx, &auth.User{ID: "u1", Email: "zia@example.com", DisplayName: "Zia", CreatedAt: t0})
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	again, err := repo.EnsureUser(ctx, &auth.User{ID: "u2", Email: "zia@example.com", CreatedAt: t0})
	require.NoError(t, err)
	require.Equal(t, "u1", again.ID)
	require.Equal(t, "Zia", again.DisplayName)

	require.NoError(t, repo.SetAdmin(ctx, "u1", true))
	got, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.Admin)
	require.ErrorIs(t, repo.SetAdmin(ctx, "nobody", true), repository.ErrNotFound)

	_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	code := &auth.LoginCode{
		ID: "c1", Email: "nonno@example.com", CodeHash: "hash", Status: auth.CodePending,
		CreatedBy: "u1", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
	}
	require.NoError(t, repo.CreateLoginCode(ctx, code))
	second := *code
	second.ID = "c2"
	require.ErrorIs(t, repo.CreateLoginCode(ctx, &second), repository.ErrConflict)

	pending, err := repo.PendingLoginCode(ctx, "nonno@example.com")
	require.NoError(t, err)
	require.Equal(t, "hash", pending.CodeHash)
	require.True(t, code.ExpiresAt.Equal(pending.ExpiresAt))

	require.NoError(t, repo.UseLoginCode(ctx, "c1", "u9", t0))
	require.ErrorIs(t, repo.UseLoginCode(ctx, "c1", "u9", t0), repository.ErrConflict)

	_, err = repo.PendingLoginCode(ctx, "nonno@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	// A new code may be issued once the previous one is used.
	require.NoError(t, repo.CreateLoginCode(ctx, &second))
}
