// Package notify periodically scans the task store and fires one-shot
// reminders: due-date reminders inside their reminder window, and a gentle
// nudge for undated tasks that have been waiting too long.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waddu20-ops/SmartDo/internal/store"
)

// Sender delivers a notification to whoever is listening.
type Sender interface {
	Send(taskID, title, body string)
}

const (
	defaultInterval = time.Minute
	// undated tasks older than this get a single nudge
	nudgeAge = 2 * time.Hour
)

// Notifier runs the reminder loop.
type Notifier struct {
	store    *store.Store
	sender   Sender
	interval time.Duration
	log      zerolog.Logger
	nowFn    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Notifier with the default one-minute cadence.
func New(st *store.Store, sender Sender, logger zerolog.Logger) *Notifier {
	return &Notifier{
		store:    st,
		sender:   sender,
		interval: defaultInterval,
		log:      logger,
		nowFn:    time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the scan loop in the background.
func (n *Notifier) Start() {
	go func() {
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.stopCh:
				return
			case <-ticker.C:
				n.sweep()
			}
		}
	}()
}

// Stop halts the loop. Safe to call more than once.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
}

func (n *Notifier) sweep() {
	tasks, err := n.store.List()
	if err != nil {
		n.log.Error().Err(err).Msg("reminder sweep failed")
		return
	}
	now := n.nowFn()
	for _, t := range tasks {
		if t.Completed || t.Notified {
			continue
		}
		body, fire := reminderFor(t, now)
		if !fire {
			continue
		}
		n.sender.Send(t.ID, t.Title, body)
		t.Notified = true
		if err := n.store.Put(t); err != nil {
			n.log.Error().Err(err).Str("task", t.ID).Msg("mark notified failed")
		}
	}
}

// reminderFor decides whether a task should fire now and with what message.
func reminderFor(t *store.Task, now time.Time) (string, bool) {
	if t.DueDate != nil && t.ReminderMinutes != nil {
		due := *t.DueDate
		remindAt := due.Add(-time.Duration(*t.ReminderMinutes) * time.Minute)
		if !now.Before(remindAt) && now.Before(due) {
			return fmt.Sprintf("Reminder: %s is coming up!", t.Title), true
		}
		return "", false
	}
	if t.DueDate == nil && now.Sub(t.CreatedAt) > nudgeAge {
		return fmt.Sprintf("SmartDo nudge: %q is still waiting.", t.Title), true
	}
	return "", false
}
