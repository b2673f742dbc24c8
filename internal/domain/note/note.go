// Package note holds the records a user creates: notes and reminders.
package note

import (
	"fmt"
	"strings"
	"time"
)

// DefaultList is the list used when the user does not name one.
const DefaultList = "notes"

// Kind distinguishes record types sharing the record index.
type Kind string

// Record kinds.
const (
	KindNote       Kind = "note"
	KindReminder   Kind = "reminder"
	KindVocabulary Kind = "vocabulary"
)

// Note is a piece of user text with resolved numeric quantities.
type Note struct {
	ID         string
	Tenant     string
	List       string
	Text       string
	CreatedAt  time.Time
	Completed  bool
	Quantities map[string]float64
}

// NumericEntity is a number mentioned in user text, paired with its unit text.
// Index is the position of the mention in the parse that produced it.
type NumericEntity struct {
	Value float64
	Unit  string
	Index int
}

// TriggerType selects how a reminder fires.
type TriggerType string

// Trigger types.
const (
	TriggerDate     TriggerType = "date"
	TriggerCron     TriggerType = "cron"
	TriggerInterval TriggerType = "interval"
)

// Trigger describes when a reminder fires.
type Trigger struct {
	Type    TriggerType
	RunAt   time.Time
	Cron    string
	Every   time.Duration
	StartAt time.Time
}

// Validate checks that the trigger carries what its type needs.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerDate:
		if t.RunAt.IsZero() {
			return fmt.Errorf("date trigger requires run time")
		}
	case TriggerCron:
		if len(strings.Fields(t.Cron)) != 5 {
			return fmt.Errorf("cron trigger requires a 5-field expression, got %q", t.Cron)
		}
	case TriggerInterval:
		if t.Every < time.Minute {
			return fmt.Errorf("interval trigger must be at least one minute, got %s", t.Every)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	return nil
}

// OneShot reports whether the trigger fires only once.
func (t Trigger) OneShot() bool { return t.Type == TriggerDate }

// Reminder is a note that is delivered back to the user on a trigger.
type Reminder struct {
	Note
	JobID    string
	RemindAt time.Time
	Trigger  Trigger
}
