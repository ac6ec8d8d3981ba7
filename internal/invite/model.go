// internal/invite/model.go
//
// Invite tokens gate who may join a family.
// Lifecycle:
//
//	active ──redeem──▶ used
//	   └────expire───▶ expired
//
// used and expired are terminal. Expiry is decided by the clock alone
// (Invite.Expired); the stored status is moved to expired when someone
// looks at the token or when the sweep worker runs.

package invite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the stored state of an invite.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusUsed || s == StatusExpired }

// Invite is the stored invite record. Token doubles as the primary key.
type Invite struct {
	Token         string     `json:"token"`
	FamilyID      string     `json:"familyId"`
	FamilyName    string     `json:"familyName"`
	Label         string     `json:"label"`
	Status        Status     `json:"status"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt"` // nil: never expires
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	UsedBy        string     `json:"usedBy,omitempty"`
	UsedAt        *time.Time `json:"usedAt,omitempty"`
}

// Expired reports whether the invite's expiry lies before now.
func (i *Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// DefaultExpiration is used when the issuer does not pick one.
var DefaultExpiration = Expiration{Days: 3}

// Expiration is either a number of days or never.
type Expiration struct {
	Days  int
	Never bool
}

// ParseExpiration accepts "never" or a positive whole number of days.
// An empty string yields DefaultExpiration.
func ParseExpiration(s string) (Expiration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return DefaultExpiration, nil
	case "never":
		return Expiration{Never: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return Expiration{}, fmt.Errorf("%w: expiration must be a number of days or \"never\"", ErrInvalidInput)
	}
	return Expiration{Days: n}, nil
}

// At returns the absolute expiry for an invite issued at now, or nil.
func (e Expiration) At(now time.Time) *time.Time {
	if e.Never || e.Days <= 0 {
		return nil
	}
	t := now.Add(time.Duration(e.Days) * 24 * time.Hour)
	return &t
}

func (e Expiration) String() string {
	if e.Never {
		return "never"
	}
	return strconv.Itoa(e.Days)
}

// UnmarshalJSON accepts 7, "7" and "never".
func (e *Expiration) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		parsed, err := ParseExpiration(strconv.Itoa(n))
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: expiration must be a number of days or \"never\"", ErrInvalidInput)
	}
	parsed, err := ParseExpiration(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// MarshalJSON writes days as a number and never as a string.
func (e Expiration) MarshalJSON() ([]byte, error) {
	if e.Never {
		return []byte(`"never"`), nil
	}
	return []byte(strconv.Itoa(e.Days)), nil
}

// SanitizeToken accepts a bare token or a pasted invite URL and returns the
// last path segment, trimmed.
func SanitizeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.TrimSpace(raw)
}
