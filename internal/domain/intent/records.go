package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// Action is the top-level intent of a user message.
type Action string

// Known actions.
const (
	ActionCreateList     Action = "create_list"
	ActionCreateNote     Action = "create_note"
	ActionCreateReminder Action = "create_reminder"
	ActionSearch         Action = "search"
)

// Dispatch is the parse of the routing prompt.
type Dispatch struct {
	Action Action `json:"action"`
	List   string `json:"list_name"`
	Query  string `json:"query"`
}

// ParseDispatch decodes the routing parse and validates the action.
func ParseDispatch(raw json.RawMessage) (Dispatch, error) {
	var d Dispatch
	if err := json.Unmarshal(raw, &d); err != nil {
		return Dispatch{}, fmt.Errorf("parse dispatch: %w", err)
	}
	d.Action = Action(strings.ToLower(strings.TrimSpace(string(d.Action))))
	d.List = strings.TrimSpace(d.List)
	d.Query = strings.TrimSpace(d.Query)

	switch d.Action {
	case ActionCreateList, ActionCreateNote, ActionCreateReminder, ActionSearch:
		return d, nil
	}
	return Dispatch{}, fmt.Errorf("unknown action %q", d.Action)
}

// NoteDraft is one note proposed by the primary parse. Refs are positions in
// NoteParse.Numbers of the numbers the note mentions.
type NoteDraft struct {
	Text    string `json:"text"`
	Created string `json:"datetime_create"`
	Refs    []int  `json:"numbers"`
}

// NoteParse is the primary parse of a note-creation request.
type NoteParse struct {
	Numbers []float64
	Notes   []NoteDraft
}

// ParseNotes accepts {"numbers": [...], "notes": [...]} or a bare list of notes.
func ParseNotes(raw json.RawMessage) (NoteParse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var notes []NoteDraft
		if err := json.Unmarshal(raw, &notes); err != nil {
			return NoteParse{}, fmt.Errorf("parse notes: %w", err)
		}
		return NoteParse{Notes: notes}, nil
	}

	var dto struct {
		Numbers []looseFloat `json:"numbers"`
		Notes   []NoteDraft  `json:"notes"`
	}
	if err := json.Unmarshal(raw, &dto); err != nil {
		return NoteParse{}, fmt.Errorf("parse notes: %w", err)
	}
	p := NoteParse{Notes: dto.Notes, Numbers: make([]float64, len(dto.Numbers))}
	for i, n := range dto.Numbers {
		p.Numbers[i] = float64(n)
	}
	return p, nil
}

// TriggerDraft is the scheduling part of a reminder parse.
type TriggerDraft struct {
	Type      string     `json:"type"`
	RunDate   string     `json:"run_date"`
	Cron      string     `json:"cron"`
	Seconds   looseFloat `json:"seconds"`
	StartDate string     `json:"start_date"`
}

// ReminderDraft is one reminder proposed by the model.
type ReminderDraft struct {
	Text     string       `json:"text"`
	Created  string       `json:"datetime_create"`
	RemindAt string       `json:"datetime_reminder"`
	Trigger  TriggerDraft `json:"trigger"`
	Answer   string       `json:"answer"`
}

// ParseReminders accepts a list of reminders or a single reminder object.
func ParseReminders(raw json.RawMessage) ([]ReminderDraft, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var one ReminderDraft
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("parse reminder: %w", err)
		}
		return []ReminderDraft{one}, nil
	}
	var list []ReminderDraft
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse reminders: %w", err)
	}
	return list, nil
}

// NoteTrigger converts the drafted trigger. Times without a zone are read in loc.
func (d ReminderDraft) NoteTrigger(loc *time.Location) (note.Trigger, error) {
	t := note.Trigger{Type: note.TriggerType(strings.ToLower(strings.TrimSpace(d.Trigger.Type)))}
	switch t.Type {
	case note.TriggerDate:
		runAt := d.Trigger.RunDate
		if runAt == "" {
			runAt = d.RemindAt
		}
		at, ok := parseLocal(runAt, loc)
		if !ok {
			return note.Trigger{}, fmt.Errorf("invalid run date %q", runAt)
		}
		t.RunAt = at
	case note.TriggerCron:
		t.Cron = strings.TrimSpace(d.Trigger.Cron)
	case note.TriggerInterval:
		t.Every = time.Duration(float64(d.Trigger.Seconds) * float64(time.Second))
		if at, ok := parseLocal(d.Trigger.StartDate, loc); ok {
			t.StartAt = at
		}
	}
	if err := t.Validate(); err != nil {
		return note.Trigger{}, err
	}
	return t, nil
}

func parseLocal(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	return filter.ParseTimeIn(s, loc)
}
