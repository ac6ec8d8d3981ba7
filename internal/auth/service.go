// internal/auth/service.go
//
// Sign-in flows (magic links, admin login codes) and session tokens.

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/family-connections/internal/repository"
)

const (
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O, 1/I
	codeLength      = 8
	defaultRedirect = "/dashboard"
)

// Config holds the auth settings.
type Config struct {
	Secret       string
	BaseURL      string
	SessionTTL   time.Duration
	MagicLinkTTL time.Duration
	CodeTTL      time.Duration
	AdminEmails  []string
}

// Session is an issued credential plus the data the caller needs next.
type Session struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
	Invite    string    `json:"invite,omitempty"`
	Redirect  string    `json:"redirect,omitempty"`
}

// Service issues and verifies credentials.
type Service struct {
	repo   Repository
	cfg    Config
	signer signer
	sender LinkSender
	now    func() time.Time
}

// NewService creates the auth service. Zero TTLs fall back to 14 days for
// sessions, 15 minutes for sign-in links and 7 days for login codes.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 14 * 24 * time.Hour
	}
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 7 * 24 * time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = normalizeEmail(e)
	}
	return &Service{repo: repo, cfg: cfg, signer: signer{secret: []byte(cfg.Secret)}, sender: LogSender{}, now: time.Now}
}

// WithSender sets how sign-in links reach their owner.
func (s *Service) WithSender(ls LinkSender) *Service { s.sender = ls; return s }

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service { s.now = now; return s }

// SessionTTL is how long an issued session stays valid.
func (s *Service) SessionTTL() time.Duration { return s.cfg.SessionTTL }

// RequestMagicLink builds a time-boxed sign-in link for email and hands it
// to the LinkSender. The link is also returned so development builds can
// echo it; handlers must not show it to the requester otherwise.
func (s *Service) RequestMagicLink(ctx context.Context, email, inviteToken, redirect string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: please enter an email address", ErrInvalidInput)
	}
	redirect = SanitizeRedirect(redirect)
	tok, err := s.signer.magicToken(email, inviteToken, redirect, s.now(), s.cfg.MagicLinkTTL)
	if err != nil {
		return "", fmt.Errorf("signing link: %w", err)
	}
	q := url.Values{}
	q.Set("token", tok)
	if inviteToken != "" {
		q.Set("invite", inviteToken)
	}
	q.Set("redirect", redirect)
	link := s.cfg.BaseURL + "/join/confirm?" + q.Encode()
	if err := s.sender.SendMagicLink(ctx, email, link); err != nil {
		return "", fmt.Errorf("sending link: %w", err)
	}
	log.Info().Str("email", email).Bool("invite", inviteToken != "").Msg("magic link sent")
	return link, nil
}

// ConfirmMagicLink verifies a sign-in link token and signs the user in,
// creating the account on first use.
func (s *Service) ConfirmMagicLink(ctx context.Context, token string) (*Session, error) {
	now := s.now()
	c, err := s.signer.parseMagic(strings.TrimSpace(token), now)
	if err != nil {
		log.Debug().Err(err).Msg("reject sign-in link")
		return nil, ErrInvalidLink
	}
	u, err := s.ensureUser(ctx, c.Email, "")
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(u, now)
	if err != nil {
		return nil, err
	}
	sess.Invite, sess.Redirect = c.Invite, c.Redirect
	return sess, nil
}

// IssuedCode is shown once to the admin who created it.
type IssuedCode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateLoginCode lets an admin pre-register someone by email.
func (s *Service) CreateLoginCode(ctx context.Context, admin Principal, email, displayName string) (*IssuedCode, error) {
	if !admin.Admin {
		return nil, ErrForbidden
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	code, err := newCode()
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing code: %w", err)
	}
	now := s.now().UTC()
	lc := &LoginCode{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		CodeHash:    string(hash),
		Status:      CodePending,
		CreatedBy:   admin.UserID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
	}
	if err := s.repo.CreateLoginCode(ctx, lc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrCodePending
		}
		return nil, fmt.Errorf("storing code: %w", err)
	}
	log.Info().Str("email", email).Str("admin", admin.UserID).Msg("login code created")
	return &IssuedCode{Email: email, Code: code, ExpiresAt: lc.ExpiresAt}, nil
}

// VerifyLoginCode signs in with an admin-issued code. The code is consumed.
func (s *Service) VerifyLoginCode(ctx context.Context, email, code string) (*Session, error) {
	email = normalizeEmail(email)
	code = strings.ToUpper(strings.TrimSpace(code))
	if email == "" || code == "" {
		return nil, fmt.Errorf("%w: email and code are required", ErrInvalidInput)
	}
	lc, err := s.repo.PendingLoginCode(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("loading code: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(lc.CodeHash), []byte(code)) != nil {
		return nil, ErrInvalidCode
	}
	now := s.now()
	if lc.ExpiresAt.Before(now) {
		return nil, ErrCodeExpired
	}

	display := lc.DisplayName
	if display == "" {
		display = strings.SplitN(email, "@", 2)[0]
	}
	u, err := s.ensureUser(ctx, email, display)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UseLoginCode(ctx, lc.ID, u.ID, now.UTC()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("consuming code: %w", err)
	}
	return s.issue(u, now)
}

// Authenticate verifies a session credential and returns its principal.
// The account must still exist.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	c, err := s.signer.parseSession(token, s.now())
	if err != nil {
		return nil, ErrUnauthorized
	}
	u, err := s.repo.GetUser(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &Principal{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Admin: u.Admin}, nil
}

func (s *Service) ensureUser(ctx context.Context, email, displayName string) (*User, error) {
	if displayName == "" {
		displayName = email
	}
	u, err := s.repo.EnsureUser(ctx, &User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}
	if !u.Admin && slices.Contains(s.cfg.AdminEmails, u.Email) {
		if err := s.repo.SetAdmin(ctx, u.ID, true); err != nil {
			return nil, fmt.Errorf("promoting admin: %w", err)
		}
		u.Admin = true
		log.Info().Str("userId", u.ID).Msg("admin granted from config")
	}
	return u, nil
}

func (s *Service) issue(u *User, now time.Time) (*Session, error) {
	tok, exp, err := s.signer.sessionToken(u, now, s.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// SanitizeRedirect only allows same-site absolute paths.
func SanitizeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\") {
		return target
	}
	return defaultRedirect
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// newCode draws codeLength characters from codeAlphabet. The alphabet has
// 32 symbols, so the low five bits of a random byte are uniform.
func newCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
