package alerting

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/ncastellanos/vecino/pkg/errors"
)

// TargetSpec declares who an alert should reach. Exactly one mode applies:
// an explicit contact list, or the whole roster when NotifyAll is set.
type TargetSpec struct {
	NotifyAll   bool
	ExplicitIDs []string
}

// Roster exposes the community members eligible for notify-all alerts.
type Roster interface {
	EnrolledActiveIDs(ctx context.Context) ([]string, error)
}

// Resolver turns a TargetSpec into the concrete recipient snapshot for one
// alert. The roster is queried at dispatch time, never cached, so the snapshot
// reflects membership at the moment of the emergency.
type Resolver struct {
	roster Roster
}

// NewResolver constructs a Resolver.
func NewResolver(roster Roster) *Resolver {
	return &Resolver{roster: roster}
}

// Resolve produces the recipient ID list for an alert raised by originatorID.
// The originator is never their own recipient. An empty result is
// ErrNoRecipients; a roster lookup failure is reported as ErrRosterUnavailable
// so callers can distinguish "nobody to tell" from "could not find out".
func (r *Resolver) Resolve(ctx context.Context, originatorID string, spec TargetSpec) ([]string, error) {
	var candidates []string

	if spec.NotifyAll {
		if r.roster == nil {
			return nil, apperrors.ErrRosterUnavailable
		}
		ids, err := r.roster.EnrolledActiveIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRosterUnavailable, err)
		}
		candidates = ids
	} else {
		candidates = spec.ExplicitIDs
	}

	recipients := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" || id == originatorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}

	if len(recipients) == 0 {
		return nil, apperrors.ErrNoRecipients
	}
	return recipients, nil
}
