package record

import (
	"strconv"
	"strings"
	"time"

	"github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
)

// noteToHash converts a note into hash fields (without the vector).
func noteToHash(n *note.Note, kind note.Kind) map[string]string {
	m := map[string]string{
		FieldText:              n.Text,
		FieldKind:              string(kind),
		FieldCompleted:         strconv.FormatBool(n.Completed),
		filter.FieldTenant:     n.Tenant,
		filter.FieldCollection: n.List,
		filter.FieldCreated:    strconv.FormatInt(n.CreatedAt.Unix(), 10),
	}
	for field, v := range n.Quantities {
		m[field] = formatNumber(v)
	}
	return m
}

func reminderToHash(r *note.Reminder) map[string]string {
	m := noteToHash(&r.Note, note.KindReminder)
	m[FieldJobID] = r.JobID
	m[FieldTriggerType] = string(r.Trigger.Type)
	if !r.RemindAt.IsZero() {
		m[filter.FieldReminder] = strconv.FormatInt(r.RemindAt.Unix(), 10)
	}
	switch r.Trigger.Type {
	case note.TriggerCron:
		m[FieldCron] = r.Trigger.Cron
	case note.TriggerInterval:
		m[FieldEvery] = strconv.FormatInt(int64(r.Trigger.Every/time.Second), 10)
	}
	if !r.Trigger.StartAt.IsZero() {
		m[FieldStart] = strconv.FormatInt(r.Trigger.StartAt.Unix(), 10)
	}
	return m
}

// hashToReminder rebuilds a reminder from stored hash fields.
func hashToReminder(id string, m map[string]string) note.Reminder {
	r := note.Reminder{
		Note: note.Note{
			ID:        id,
			Tenant:    m[filter.FieldTenant],
			List:      m[filter.FieldCollection],
			Text:      m[FieldText],
			CreatedAt: parseEpoch(m[filter.FieldCreated]),
			Completed: m[FieldCompleted] == "true",
		},
		JobID:    m[FieldJobID],
		RemindAt: parseEpoch(m[filter.FieldReminder]),
	}
	r.Trigger = note.Trigger{
		Type:    note.TriggerType(m[FieldTriggerType]),
		RunAt:   r.RemindAt,
		Cron:    m[FieldCron],
		StartAt: parseEpoch(m[FieldStart]),
	}
	if secs, err := strconv.ParseInt(m[FieldEvery], 10, 64); err == nil {
		r.Trigger.Every = time.Duration(secs) * time.Second
	}
	return r
}

// toResult converts hash fields into a read-only retrieved record.
// Everything except the text becomes metadata.
func toResult(id string, distance float64, m map[string]string) result.Result {
	md := make(map[string]string, len(m))
	for k, v := range m {
		if k == FieldText || k == FieldVector {
			continue
		}
		md[k] = v
	}
	return result.New(id, m[FieldText], distance, md)
}

func parseEpoch(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
