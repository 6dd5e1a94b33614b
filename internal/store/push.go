package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
)

// PushStore keeps web push subscriptions and a per-day log of sent
// reminders in kv.
type PushStore struct {
	kv  *kv.Store
	now func() time.Time
}

func NewPushStore(kv *kv.Store) *PushStore {
	return &PushStore{kv: kv, now: time.Now}
}

// Subscribe stores sub, replacing the keys of an existing subscription
// with the same endpoint.
func (s *PushStore) Subscribe(ctx context.Context, sub model.PushSubscription) (*model.PushSubscription, error) {
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if err := apperr.Validate(sub); err != nil {
		return nil, err
	}
	var out model.PushSubscription
	_, err := kv.Update(ctx, s.kv, kv.KeyPushSubscriptions, func(subs *[]model.PushSubscription) error {
		for i := range *subs {
			if (*subs)[i].Endpoint == sub.Endpoint {
				(*subs)[i].P256dhKey = sub.P256dhKey
				(*subs)[i].AuthKey = sub.AuthKey
				(*subs)[i].DeviceName = sub.DeviceName
				out = (*subs)[i]
				return nil
			}
		}
		sub.CreatedAt = s.now().UTC()
		*subs = append(*subs, sub)
		out = sub
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save push subscription: %w", err)
	}
	return &out, nil
}

func (s *PushStore) Subscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	subs, err := load[model.PushSubscription](ctx, s.kv, kv.KeyPushSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	return subs, nil
}

// Unsubscribe removes the subscription for endpoint. A missing endpoint is
// not an error.
func (s *PushStore) Unsubscribe(ctx context.Context, endpoint string) error {
	_, err := kv.Update(ctx, s.kv, kv.KeyPushSubscriptions, func(subs *[]model.PushSubscription) error {
		*subs = slices.DeleteFunc(*subs, func(p model.PushSubscription) bool {
			return p.Endpoint == endpoint
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// WasSent reports whether the reminder ref already went out on day.
func (s *PushStore) WasSent(ctx context.Context, ref, day string) (bool, error) {
	sent := map[string]string{}
	if _, err := s.kv.Get(ctx, kv.KeyPushSent, &sent); err != nil {
		return false, fmt.Errorf("check push sent: %w", err)
	}
	return sent[ref] == day, nil
}

// RecordSent marks ref as sent on day and forgets entries from other days.
func (s *PushStore) RecordSent(ctx context.Context, ref, day string) error {
	_, err := kv.Update(ctx, s.kv, kv.KeyPushSent, func(sent *map[string]string) error {
		if *sent == nil {
			*sent = map[string]string{}
		}
		for k, d := range *sent {
			if d != day {
				delete(*sent, k)
			}
		}
		(*sent)[ref] = day
		return nil
	})
	if err != nil {
		return fmt.Errorf("record push sent: %w", err)
	}
	return nil
}
