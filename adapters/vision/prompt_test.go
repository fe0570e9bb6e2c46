package vision

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name         string
		exerciseType string
		history      []string
		want         string
		contains     []string
	}{
		{
			name: "no exercise",
			want: "You are a personal trainer. Give quick, direct feedback in 1-2 short sentences max. Focus only on the most critical form correction needed right now.",
		},
		{
			name:         "with exercise",
			exerciseType: "squat",
			want:         "You are a personal trainer. Give quick, direct feedback in 1-2 short sentences max. Exercise: squat. Focus only on the most critical form correction needed right now.",
		},
		{
			name:         "with history",
			exerciseType: "plank",
			history:      []string{"Lift your hips.", "Tuck your chin."},
			contains:     []string{"Exercise: plank.", `"Lift your hips."`, `"Tuck your chin."`, "Do not repeat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPrompt(tt.exerciseType, tt.history)
			if tt.want != "" && got != tt.want {
				t.Errorf("BuildPrompt() = %q, want %q", got, tt.want)
			}
			for _, c := range tt.contains {
				if !strings.Contains(got, c) {
					t.Errorf("BuildPrompt() = %q, missing %q", got, c)
				}
			}
		})
	}
}
