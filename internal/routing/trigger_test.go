package routing

import "testing"

func TestSelectTrigger(t *testing.T) {
	tests := []struct {
		name     string
		triggers []*TriggerConfig
		want     string
	}{
		{
			name: "lowest priority wins",
			triggers: []*TriggerConfig{
				{Name: "routine", Active: true, Priority: 3},
				{Name: "urgent", Active: true, Priority: 1},
				{Name: "high", Active: true, Priority: 2},
			},
			want: "urgent",
		},
		{
			name: "name breaks priority ties",
			triggers: []*TriggerConfig{
				{Name: "zulu", Active: true, Priority: 2},
				{Name: "alpha", Active: true, Priority: 2},
			},
			want: "alpha",
		},
		{
			name: "inactive triggers skipped",
			triggers: []*TriggerConfig{
				{Name: "disabled", Active: false, Priority: 1},
				{Name: "live", Active: true, Priority: 3},
			},
			want: "live",
		},
		{
			name:     "no match",
			triggers: nil,
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectTrigger(tt.triggers)
			if tt.want == "" {
				if got != nil {
					t.Errorf("SelectTrigger() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("SelectTrigger() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackTrigger(t *testing.T) {
	got := fallbackTrigger(PhaseLaboratory)
	if got.Priority != 3 {
		t.Errorf("fallback priority = %d, want 3", got.Priority)
	}
	if got.Name != "builtin:laboratory" {
		t.Errorf("fallback name = %q", got.Name)
	}
	if got.Include.Header == "" {
		t.Error("fallback trigger needs a header so messages are not bare field lists")
	}
}
