// internal/invite/service.go
//
// Invite lifecycle: issue a link, validate a pasted link or code, redeem it
// into a family membership exactly once.

package invite

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/repository"
)

const (
	// DefaultTokenBytes yields 10 hex characters.
	DefaultTokenBytes = 5
	maxIssueAttempts  = 5
	shareMessage      = "Join today's Family Connections puzzle: "
)

// Repository persists invites.
type Repository interface {
	// Create inserts inv and returns repository.ErrConflict when the token
	// is already taken.
	Create(ctx context.Context, inv *Invite) error
	Get(ctx context.Context, token string) (*Invite, error)
	ListByFamily(ctx context.Context, familyID string) ([]Invite, error)
	Touch(ctx context.Context, token string, at time.Time) error
	// MarkExpired moves an active invite to expired and reports whether it
	// changed anything.
	MarkExpired(ctx context.Context, token string, at time.Time) (bool, error)
	// ExpireStale moves every active invite whose expiry is before now.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	// Redeem marks the invite used and upserts the family and membership in
	// one transaction. It returns repository.ErrConflict, writing nothing,
	// when the invite is not active or expired at r.At.
	Redeem(ctx context.Context, r Redemption) (*Invite, error)
}

// Redemption carries the joining user's profile into Repository.Redeem.
type Redemption struct {
	Token       string
	UserID      string
	Email       string
	Username    string
	DisplayName string
	At          time.Time
}

// Publisher is notified after a successful redemption.
type Publisher interface {
	InviteRedeemed(ctx context.Context, inv *Invite) error
}

// Service implements issuing, validating and redeeming invites.
type Service struct {
	repo       Repository
	publisher  Publisher
	baseURL    string
	tokenBytes int
	now        func() time.Time
}

// NewService creates an invite service. baseURL is the public app URL used
// to build invite links.
func NewService(repo Repository, baseURL string) *Service {
	return &Service{
		repo:       repo,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenBytes: DefaultTokenBytes,
		now:        time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service { s.now = now; return s }

// WithPublisher sets the redemption event sink.
func (s *Service) WithPublisher(p Publisher) *Service { s.publisher = p; return s }

// WithTokenBytes sets the random byte length of new tokens.
func (s *Service) WithTokenBytes(n int) *Service {
	if n > 0 {
		s.tokenBytes = n
	}
	return s
}

// IssueRequest describes a new invite.
type IssueRequest struct {
	FamilyID   string     `json:"familyId"`
	FamilyName string     `json:"familyName"`
	Label      string     `json:"label"`
	Expiration Expiration `json:"expiration"`
	CreatedBy  string     `json:"-"`
}

// Issued is returned to the issuer.
type Issued struct {
	Invite   *Invite `json:"invite"`
	URL      string  `json:"url"`
	ShareURL string  `json:"shareUrl"`
}

// Issue stores a fresh active invite and returns its links.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	req.FamilyID = strings.TrimSpace(req.FamilyID)
	if req.FamilyID == "" {
		return nil, fmt.Errorf("%w: familyId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.FamilyName) == "" {
		req.FamilyName = "Family"
	}
	if strings.TrimSpace(req.Label) == "" {
		req.Label = "Family invite"
	}
	if req.Expiration == (Expiration{}) {
		req.Expiration = DefaultExpiration
	}

	now := s.now().UTC()
	inv := &Invite{
		FamilyID:   req.FamilyID,
		FamilyName: strings.TrimSpace(req.FamilyName),
		Label:      strings.TrimSpace(req.Label),
		Status:     StatusActive,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  now,
		ExpiresAt:  req.Expiration.At(now),
	}

	var err error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		inv.Token, err = newToken(s.tokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}
		err = s.repo.Create(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("storing invite: %w", err)
		}
		log.Warn().Int("attempt", attempt).Msg("invite token collision, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("storing invite: %w", err)
	}

	link := s.URL(inv.Token)
	log.Info().
		Str("familyId", inv.FamilyID).
		Str("expiration", req.Expiration.String()).
		Msg("invite issued")
	return &Issued{Invite: inv, URL: link, ShareURL: ShareLink(link)}, nil
}

// URL builds the public invite link for token.
func (s *Service) URL(token string) string {
	return s.baseURL + "/invite/" + token
}

// componentEscaper turns url.QueryEscape output into the URI component
// encoding browsers use: spaces as %20, and !'()* left as they are.
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// ShareLink wraps an invite URL into a WhatsApp share link.
func ShareLink(inviteURL string) string {
	return "https://wa.me/?text=" + componentEscaper.Replace(url.QueryEscape(shareMessage+inviteURL))
}

// Validation is the public view of a redeemable invite.
type Validation struct {
	Token      string `json:"token"`
	FamilyID   string `json:"familyId"`
	FamilyName string `json:"familyName"`
}

// Validate checks that a token (or a pasted invite URL) can still be
// redeemed. An invite found past its expiry is persisted as expired.
func (s *Service) Validate(ctx context.Context, tokenOrURL string) (*Validation, error) {
	inv, err := s.load(ctx, tokenOrURL)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.checkRedeemable(ctx, inv, now); err != nil {
		return nil, err
	}
	if err := s.repo.Touch(ctx, inv.Token, now); err != nil {
		return nil, fmt.Errorf("touching invite: %w", err)
	}
	return &Validation{Token: inv.Token, FamilyID: inv.FamilyID, FamilyName: inv.FamilyName}, nil
}

// FinalizeRequest identifies the authenticated user joining through an
// invite.
type FinalizeRequest struct {
	Token       string
	UserID      string
	Email       string
	Username    string
	DisplayName string
}

// Finalize redeems the invite for the user: the invite becomes used and the
// user becomes a member of its family, all or nothing. Of two concurrent
// redemptions only one succeeds; the other gets ErrNotActive.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*Invite, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, fmt.Errorf("%w: missing invite token", ErrInvalidInput)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: missing user information", ErrInvalidInput)
	}
	inv, err := s.load(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.checkRedeemable(ctx, inv, now); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	display := firstNonEmpty(req.DisplayName, username, email)

	used, err := s.repo.Redeem(ctx, Redemption{
		Token:       inv.Token,
		UserID:      req.UserID,
		Email:       email,
		Username:    username,
		DisplayName: display,
		At:          now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("redeeming invite: %w", err)
	}

	log.Info().Str("familyId", used.FamilyID).Str("userId", req.UserID).Msg("invite redeemed")
	if s.publisher != nil {
		if err := s.publisher.InviteRedeemed(ctx, used); err != nil {
			log.Warn().Err(err).Msg("publish invite.redeemed")
		}
	}
	return used, nil
}

// List returns the invites of a family, newest first.
func (s *Service) List(ctx context.Context, familyID string) ([]Invite, error) {
	out, err := s.repo.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return out, nil
}

// ExpireStale persists the expired status of every overdue active invite.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expiring invites: %w", err)
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, tokenOrURL string) (*Invite, error) {
	token := SanitizeToken(tokenOrURL)
	if token == "" {
		return nil, fmt.Errorf("%w: paste a valid invite link or code", ErrInvalidInput)
	}
	inv, err := s.repo.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading invite: %w", err)
	}
	return inv, nil
}

// checkRedeemable returns nil only for an active, unexpired invite.
func (s *Service) checkRedeemable(ctx context.Context, inv *Invite, now time.Time) error {
	if inv.Status != StatusActive {
		return ErrNotActive
	}
	if inv.Expired(now) {
		if _, err := s.repo.MarkExpired(ctx, inv.Token, now); err != nil {
			log.Warn().Err(err).Str("token", inv.Token).Msg("persist invite expiry")
		}
		return ErrExpired
	}
	return nil
}

func newToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
