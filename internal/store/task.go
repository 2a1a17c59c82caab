package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the task's urgency on the host scale.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// EnergyLevel tags the effort a task needs.
type EnergyLevel string

const (
	EnergyLow  EnergyLevel = "low"
	EnergyHigh EnergyLevel = "high"
)

// Zone tags the life area a task belongs to.
type Zone string

const (
	ZoneSelf   Zone = "self"
	ZoneWork   Zone = "work"
	ZoneHome   Zone = "home"
	ZoneSocial Zone = "social"
	ZoneOther  Zone = "other"
)

// Subtask is one step of a broken-down task.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task is the persisted unit of work.
type Task struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Completed       bool        `json:"completed"`
	CreatedAt       time.Time   `json:"createdAt"`
	Priority        Priority    `json:"priority"`
	EnergyLevel     EnergyLevel `json:"energyLevel"`
	Zone            Zone        `json:"zone"`
	Subtasks        []Subtask   `json:"subtasks"`
	DueDate         *time.Time  `json:"dueDate,omitempty"`
	ReminderMinutes *int        `json:"reminderMinutes,omitempty"`
	Notified        bool        `json:"notified"`
}

// NewTask builds a task with the application defaults.
func NewTask(title string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(title),
		CreatedAt:   time.Now().UTC(),
		Priority:    PriorityMedium,
		EnergyLevel: EnergyLow,
		Zone:        ZoneOther,
		Subtasks:    []Subtask{},
	}
}

// NewSubtask builds one step with a fresh id.
func NewSubtask(title string) Subtask {
	return Subtask{ID: uuid.NewString(), Title: strings.TrimSpace(title)}
}

// ParsePriority validates a priority string, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(s)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// ParseZone validates a zone string, defaulting to other.
func ParseZone(s string) Zone {
	switch Zone(strings.ToLower(s)) {
	case ZoneSelf, ZoneWork, ZoneHome, ZoneSocial:
		return Zone(strings.ToLower(s))
	default:
		return ZoneOther
	}
}

// ParseEnergy validates an energy string, defaulting to low.
func ParseEnergy(s string) EnergyLevel {
	if EnergyLevel(strings.ToLower(s)) == EnergyHigh {
		return EnergyHigh
	}
	return EnergyLow
}
