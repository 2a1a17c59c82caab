package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/waddu20-ops/SmartDo/internal/live"
)

// ToolName is the single function the session declares to the remote model.
const ToolName = "add_calendar_task"

// ErrMissingTitle marks a tool call that cannot become a task.
var ErrMissingTitle = errors.New("tool call missing required title")

// TaskIntent is a detected task-creation request, validated at the channel
// boundary. Title is required; everything else is best-effort.
type TaskIntent struct {
	Title      string `json:"title"`
	Day        string `json:"day,omitempty"`
	Time       string `json:"time,omitempty"`
	Importance string `json:"importance,omitempty"`
}

// ParseIntent decodes raw tool-call arguments into a TaskIntent. A missing or
// blank title is a hard failure; day, time and importance stay free-form and
// importance defaults to "minor".
func ParseIntent(args json.RawMessage) (TaskIntent, error) {
	var in TaskIntent
	if err := json.Unmarshal(args, &in); err != nil {
		return TaskIntent{}, fmt.Errorf("malformed tool arguments: %w", err)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return TaskIntent{}, ErrMissingTitle
	}
	if strings.ToLower(strings.TrimSpace(in.Importance)) == "major" {
		in.Importance = "major"
	} else {
		in.Importance = "minor"
	}
	return in, nil
}

// Priority maps intent importance onto the host application's priority scale.
func (t TaskIntent) Priority() string {
	if t.Importance == "major" {
		return "high"
	}
	return "medium"
}

// TaskToolDeclaration describes add_calendar_task for the session setup
// message. The day description still advertises "today"/"tomorrow" even
// though the resolver only matches weekday names; unmatched days fall back
// to the reference day.
func TaskToolDeclaration() live.FunctionDeclaration {
	return live.FunctionDeclaration{
		Name:        ToolName,
		Description: "Add a task to the calendar with an optional day, time, and importance level.",
		Parameters: &live.Schema{
			Type: "OBJECT",
			Properties: map[string]*live.Schema{
				"title":      {Type: "STRING", Description: "The description of the task."},
				"day":        {Type: "STRING", Description: "The day of the week (e.g., Monday, Tuesday, today, tomorrow)."},
				"time":       {Type: "STRING", Description: "The time of day (e.g., 2 PM, 14:00, noon)."},
				"importance": {Type: "STRING", Description: `Is it a "major" or "minor" task?`, Enum: []string{"major", "minor"}},
			},
			Required: []string{"title"},
		},
	}
}

// SystemInstruction is the persona the session declares to the remote model.
const SystemInstruction = `You are SmartDo, a warm and gentle productivity companion. When users mention something they need to do, acknowledge it supportively. Use "add_calendar_task" to capture details. If they sound urgent or say it is important, mark it as "major".`
