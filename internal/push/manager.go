package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/localstate"
)

// Platform identifier sent with every subscription record.
const Platform = "web_push"

// Permission is the notification permission state of the host.
type Permission string

// Permission states, mirroring the browser Notification API.
const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Capability abstracts the push-capable host. In the browser this is the
// service worker and PushManager pair; tests and the CLI supply static
// implementations.
type Capability interface {
	// Supported reports whether the host can receive push messages at all.
	Supported() bool
	// Permission returns the current notification permission.
	Permission() Permission
	// RequestPermission prompts the user when the permission is undecided.
	RequestPermission(ctx context.Context) (Permission, error)
	// Subscription returns the current push subscription, creating one when
	// none exists.
	Subscription(ctx context.Context) (*Subscription, error)
}

// StaticCapability is a Capability with fixed answers. The subscribe CLI
// command uses it with device material loaded from a key file.
type StaticCapability struct {
	IsSupported bool
	State       Permission
	Sub         *Subscription
}

// Supported implements Capability.
func (c StaticCapability) Supported() bool { return c.IsSupported }

// Permission implements Capability.
func (c StaticCapability) Permission() Permission { return c.State }

// RequestPermission implements Capability; a static host decides instantly.
func (c StaticCapability) RequestPermission(context.Context) (Permission, error) {
	if c.State == PermissionDefault {
		return PermissionGranted, nil
	}
	return c.State, nil
}

// Subscription implements Capability.
func (c StaticCapability) Subscription(context.Context) (*Subscription, error) {
	if c.Sub == nil {
		return nil, fmt.Errorf("push: no subscription material available")
	}
	return c.Sub, nil
}

// ErrUnsupported means the host cannot receive push messages.
var ErrUnsupported = errors.New("push: not supported on this host")

// Result describes the outcome of an Ensure run.
type Result struct {
	// Subscribed is false when permission was not granted; every other
	// failure surfaces as an error instead.
	Subscribed bool
	Record     *Record
	// Created distinguishes a POST fallback from a PUT refresh.
	Created bool
	// Verified reports whether the re-fetch found the upserted endpoint.
	Verified bool
}

// Manager runs the one-shot subscription setup flow.
type Manager struct {
	api         *Client
	capability  Capability
	state       *localstate.Store
	caregiverID int
	logger      *slog.Logger
}

// NewManager wires the setup flow.
func NewManager(api *Client, capability Capability, state *localstate.Store, caregiverID int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{api: api, capability: capability, state: state, caregiverID: caregiverID, logger: logger}
}

// Ensure verifies capability, settles permission, obtains the subscription,
// and upserts it against the backend. A stored subscription id is refreshed
// with PUT; when the PUT fails the stale id is cleared, and a missing record
// falls back to POST while any other failure propagates. The flow finishes
// by re-fetching the caregiver's subscriptions to verify the upsert.
//
// Permission refusals degrade to a not-subscribed result; every other
// failure is surfaced to the caller.
func (m *Manager) Ensure(ctx context.Context) (*Result, error) {
	if !m.capability.Supported() {
		return nil, ErrUnsupported
	}

	perm := m.capability.Permission()
	if perm == PermissionDefault {
		requested, err := m.capability.RequestPermission(ctx)
		if err != nil {
			m.logger.Warn("push permission request failed", slog.String("error", err.Error()))
			requested = PermissionDenied
		}
		perm = requested
	}
	if perm != PermissionGranted {
		m.logger.Info("push subscription skipped: permission not granted",
			slog.String("permission", string(perm)))
		return &Result{Subscribed: false}, nil
	}

	sub, err := m.capability.Subscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: obtain subscription: %w", err)
	}

	payload := Record{
		CaregiverID:     m.caregiverID,
		Platform:        Platform,
		EndpointOrToken: sub.Endpoint,
		Keys:            sub.Keys,
	}

	rec, created, err := m.upsert(ctx, payload)
	if err != nil {
		return nil, err
	}

	verified, err := m.verify(ctx, sub.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("push: verify subscriptions: %w", err)
	}

	return &Result{Subscribed: true, Record: rec, Created: created, Verified: verified}, nil
}

func (m *Manager) upsert(ctx context.Context, payload Record) (*Record, bool, error) {
	if storedID := m.state.SubscriptionID(); storedID != "" {
		rec, err := m.api.Update(ctx, storedID, payload)
		if err == nil {
			id := string(rec.ID)
			if id == "" {
				id = storedID
			}
			if err := m.state.SetSubscriptionID(id); err != nil {
				m.logger.Warn("push: persist subscription id failed", slog.String("error", err.Error()))
			}
			return rec, false, nil
		}

		m.logger.Warn("push subscription PUT failed",
			slog.String("id", storedID), slog.String("error", err.Error()))
		if clearErr := m.state.ClearSubscriptionID(); clearErr != nil {
			m.logger.Warn("push: clear stale subscription id failed", slog.String("error", clearErr.Error()))
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, false, err
		}
	}

	rec, err := m.api.Create(ctx, payload)
	if err != nil {
		return nil, false, err
	}
	if err := m.state.SetSubscriptionID(string(rec.ID)); err != nil {
		m.logger.Warn("push: persist subscription id failed", slog.String("error", err.Error()))
	}
	return rec, true, nil
}

func (m *Manager) verify(ctx context.Context, endpoint string) (bool, error) {
	list, err := m.api.ListByCaregiver(ctx, m.caregiverID)
	if err != nil {
		return false, err
	}
	for _, rec := range list {
		if rec.EndpointOrToken == endpoint {
			return true, nil
		}
	}
	return false, nil
}
