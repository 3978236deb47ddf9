// Package models holds the verification challenge entity and its rules.
package models

import (
	"fmt"
	"time"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
)

// Method is how a guardian proves control of a destination before consenting.
type Method string

const (
	MethodEmailOTP         Method = "EMAIL_OTP"
	MethodSMSOTP           Method = "SMS_OTP"
	MethodExistingIdentity Method = "EXISTING_IDENTITY"
)

func (m Method) IsValid() bool {
	return m == MethodEmailOTP || m == MethodSMSOTP || m == MethodExistingIdentity
}

// RequiresCode reports whether the method sends a one-time code.
func (m Method) RequiresCode() bool {
	return m == MethodEmailOTP || m == MethodSMSOTP
}

func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown verification method %q", s)
	}
	return m, nil
}

const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultMaxAttempts = 5
	CodeLength         = 6
)

// Challenge is a single issued verification. Only a keyed hash of the code
// is kept. A challenge is live while unconsumed and before ExpiresAt.
type Challenge struct {
	ID              id.ChallengeID
	ConsentRecordID id.ConsentID
	Method          Method
	CodeHash        []byte
	DestinationHint string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	Attempts        int
	Consumed        bool
	Satisfied       bool
}

// IsExpired treats now == ExpiresAt as expired.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Challenge) IsLive(now time.Time) bool {
	return !c.Consumed && !c.IsExpired(now)
}

// Precheck returns the rejection reason that applies before any code
// comparison, or "" when an attempt may be made.
func (c *Challenge) Precheck(now time.Time, maxAttempts int) dErrors.Reason {
	switch {
	case c.IsExpired(now):
		return dErrors.ReasonExpired
	case c.Consumed:
		return dErrors.ReasonAlreadyConsumed
	case c.Attempts >= maxAttempts:
		return dErrors.ReasonTooManyAttempts
	default:
		return ""
	}
}

// Handle is what callers learn about an issued challenge. It never carries the code.
type Handle struct {
	ChallengeID     id.ChallengeID
	Method          Method
	ExpiresAt       time.Time
	Satisfied       bool
	DestinationHint string
}

// Result is the outcome of a validation attempt.
type Result struct {
	OK       bool
	Reason   dErrors.Reason
	Attempts int
}

// Err converts a failed result into a verification error.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return dErrors.Verification(r.Reason, reasonMessages[r.Reason])
}

var reasonMessages = map[dErrors.Reason]string{
	dErrors.ReasonInvalidCode:     "verification code is incorrect",
	dErrors.ReasonExpired:         "verification code has expired",
	dErrors.ReasonTooManyAttempts: "too many attempts, request a new code",
	dErrors.ReasonAlreadyConsumed: "verification code was already used",
}

// Delivery is handed to a code sender exactly once per issued challenge.
type Delivery struct {
	ChallengeID id.ChallengeID
	Method      Method
	Destination string
	Code        string
	ExpiresAt   time.Time
}
