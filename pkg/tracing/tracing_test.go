package tracing

import "testing"

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"", 1},
		{"0.25", 0.25},
		{"0", 0},
		{"1.5", 1},
		{"half", 1},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.value)
			if got := sampleRatio(); got != tt.want {
				t.Errorf("sampleRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}
