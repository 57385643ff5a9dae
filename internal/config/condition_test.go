package config

import "testing"

func TestCheckCondition(t *testing.T) {
	tests := []struct {
		cond    string
		wantErr bool
	}{
		{"failure_probability > 5", false},
		{"time_to_maintenance <= 24", false},
		{"  uptime_pct   <  90.5 ", false},
		{"anomaly_regions != 0", false},
		{"risk_level == high", false},
		{"state != unknown", false},
		{"failure_probability >5", true},
		{"failure_probability", true},
		{"risk_score => 4", true},
		{"risk_score > four", true},
		{"risk_level >= high", true},
		{"vibration > 3", true},
		{"", true},
	}
	for _, tc := range tests {
		t.Run(tc.cond, func(t *testing.T) {
			err := CheckCondition(tc.cond)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckCondition(%q) error = %v, wantErr %v", tc.cond, err, tc.wantErr)
			}
		})
	}
}
