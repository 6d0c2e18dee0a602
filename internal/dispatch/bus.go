// Package dispatch fans a stored submission out to its delivery path.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"swish-forms/internal/forms"
	"swish-forms/internal/settings"
)

// Hook names of the two submission events.
const (
	ContactSubmittedHook      = "swish_forms_contact_submitted"
	SubscriptionSubmittedHook = "swish_forms_subscription_submitted"
)

// ContactSubmitted is emitted after a contact form entry is stored.
type ContactSubmitted struct {
	EntryID          uint
	RecipientEmail   string
	Subject          string
	Fields           map[string]any
	SenderEmail      string
	FieldDefinitions []forms.FieldDefinition
	Settings         settings.Snapshot
}

// SubscriptionSubmitted is emitted after a subscription form entry is
// stored.
type SubscriptionSubmitted struct {
	EntryID  uint
	Provider string
	ListID   string
	Fields   map[string]any
	Email    string
	Settings settings.Snapshot
}

type (
	ContactListener      func(context.Context, ContactSubmitted) error
	SubscriptionListener func(context.Context, SubscriptionSubmitted) error
)

// Bus delivers events synchronously to registered listeners in
// registration order.
type Bus struct {
	mu           sync.RWMutex
	contact      []ContactListener
	subscription []SubscriptionListener
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnContactSubmitted(fn ContactListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contact = append(b.contact, fn)
}

func (b *Bus) OnSubscriptionSubmitted(fn SubscriptionListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscription = append(b.subscription, fn)
}

// EmitContactSubmitted runs every contact listener and joins their errors.
func (b *Bus) EmitContactSubmitted(ctx context.Context, ev ContactSubmitted) error {
	b.mu.RLock()
	listeners := append([]ContactListener(nil), b.contact...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitSubscriptionSubmitted runs every subscription listener and joins
// their errors.
func (b *Bus) EmitSubscriptionSubmitted(ctx context.Context, ev SubscriptionSubmitted) error {
	b.mu.RLock()
	listeners := append([]SubscriptionListener(nil), b.subscription...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
