package note

import (
	"testing"
	"time"
)

func TestTrigger_Validate(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{"date ok", Trigger{Type: TriggerDate, RunAt: time.Now()}, false},
		{"date missing time", Trigger{Type: TriggerDate}, true},
		{"cron ok", Trigger{Type: TriggerCron, Cron: "0 7 * * 1"}, false},
		{"cron too short", Trigger{Type: TriggerCron, Cron: "0 7 *"}, true},
		{"interval ok", Trigger{Type: TriggerInterval, Every: time.Hour}, false},
		{"interval too small", Trigger{Type: TriggerInterval, Every: time.Second}, true},
		{"unknown", Trigger{Type: "weekly"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrigger_OneShot(t *testing.T) {
	if !(Trigger{Type: TriggerDate}).OneShot() {
		t.Error("date trigger should be one-shot")
	}
	if (Trigger{Type: TriggerCron}).OneShot() {
		t.Error("cron trigger should repeat")
	}
}
