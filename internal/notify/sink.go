// Package notify delivers admission alerts and their threaded follow-ups to a
// chat channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/launchwatch/engine/internal/store"
)

var (
	// ErrTargetGone is returned when the channel or the referenced alert no
	// longer exists. Callers drop the alert.
	ErrTargetGone = errors.New("notify: target channel or message no longer exists")

	// ErrUnauthorized is returned when the chat platform rejects the credentials.
	ErrUnauthorized = errors.New("notify: credentials rejected")
)

// Admission is the payload of an admission alert.
type Admission struct {
	Candidate store.Candidate

	// Age is the listing age at evaluation time
	Age time.Duration

	// ReferralURL is the rendered referral link for the token
	ReferralURL string

	// Test marks a synthetic admission from the manual trigger
	Test bool
}

// GainUpdate is the payload of a threaded gain alert.
type GainUpdate struct {
	Name         string
	Symbol       string
	GainPct      float64
	CurrentPrice float64
	InitialPrice float64

	// Final marks the win-ceiling alert that closes the position
	Final bool
}

// Sink accepts structured alerts. Follow-ups are threaded to the AlertRef
// returned by PostAdmission.
type Sink interface {
	PostAdmission(ctx context.Context, channelID string, a Admission) (store.AlertRef, error)
	PostGainUpdate(ctx context.Context, ref store.AlertRef, u GainUpdate) error
	PostRugAlert(ctx context.Context, ref store.AlertRef, name string) error
}

// ReferralLink renders a referral template for address. Templates without a
// %s verb are returned unchanged.
func ReferralLink(template, address string) string {
	if template == "" {
		return ""
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, address)
}
