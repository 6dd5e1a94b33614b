package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// Scheduler periodically checks the pantry for reminders to send.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	push     *store.PushStore
	pantry   *store.PantryStore
	settings *store.SettingsStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, pantry *store.PantryStore, settings *store.SettingsStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  svc,
		push:     pushStore,
		pantry:   pantry,
		settings: settings,
		logger:   logger,
		interval: 15 * time.Minute,
		now:      time.Now,
	}
}

// SetInterval changes how often the pantry is checked. It applies to the
// next Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CheckPantry(ctx); err != nil {
					s.logger.Error("pantry reminders", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// CheckPantry sends at most one reminder per expiring or expired item per
// day. It returns the number of reminders sent.
func (s *Scheduler) CheckPantry(ctx context.Context) (int, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.ExpiryReminders {
		return 0, nil
	}

	subs, err := s.push.Subscriptions(ctx)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	st, err := s.pantry.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	day := now.Format("2006-01-02")
	sent := 0
	for _, item := range st.Items {
		payload, ok := reminder(item, now)
		if !ok {
			continue
		}
		ref := "pantry-" + item.ID
		done, err := s.push.WasSent(ctx, ref, day)
		if err != nil {
			return sent, err
		}
		if done {
			continue
		}

		subs = s.broadcast(ctx, subs, payload)
		if err := s.push.RecordSent(ctx, ref, day); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// broadcast sends payload to every subscription and returns the ones
// still valid.
func (s *Scheduler) broadcast(ctx context.Context, subs []model.PushSubscription, payload Payload) []model.PushSubscription {
	live := subs[:0]
	for _, sub := range subs {
		err := s.service.Send(&sub, payload)
		switch {
		case errors.Is(err, ErrExpired):
			if err := s.push.Unsubscribe(ctx, sub.Endpoint); err != nil {
				s.logger.Error("prune push subscription", "error", err)
			}
			continue
		case err != nil:
			s.logger.Warn("send pantry reminder", "device", sub.DeviceName, "error", err)
		}
		live = append(live, sub)
	}
	return live
}

func reminder(item model.PantryItem, now time.Time) (Payload, bool) {
	days, ok := item.DaysUntilExpiry(now)
	if !ok || days > model.ExpiringWindowDays {
		return Payload{}, false
	}

	p := Payload{URL: "/pantry", Tag: "pantry-" + item.ID}
	switch {
	case days < 0:
		p.Title = "Expired"
		p.Body = fmt.Sprintf("%s expired %s", item.Name, plural(-days, "day")+" ago")
	case days == 0:
		p.Title = "Expires today"
		p.Body = fmt.Sprintf("%s expires today", item.Name)
	case days == 1:
		p.Title = "Expiring soon"
		p.Body = fmt.Sprintf("%s expires tomorrow", item.Name)
	default:
		p.Title = "Expiring soon"
		p.Body = fmt.Sprintf("%s expires in %s", item.Name, plural(days, "day"))
	}
	return p, true
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// SendTest sends a test notification to every subscription.
func (s *Scheduler) SendTest(ctx context.Context) (int, error) {
	subs, err := s.push.Subscriptions(ctx)
	if err != nil {
		return 0, err
	}
	live := s.broadcast(ctx, subs, Payload{
		Title: "Larder",
		Body:  "Notifications are working",
		Tag:   "test",
	})
	return len(live), nil
}
