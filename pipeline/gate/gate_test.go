package gate

import (
	"testing"
)

func TestFromExitCode(t *testing.T) {
	tests := []struct {
		code int
		want Status
	}{
		{0, Clean},
		{1, Findings},
		{2, Error},
		{3, Error},
		{127, Error},
	}
	for _, tt := range tests {
		got := FromExitCode(tt.code)
		if got.Status != tt.want {
			t.Errorf("FromExitCode(%d).Status = %v, want %v", tt.code, got.Status, tt.want)
		}
		if got.Code != tt.code {
			t.Errorf("FromExitCode(%d).Code = %d, want %d", tt.code, got.Code, tt.code)
		}
	}
}

func TestFromValue(t *testing.T) {
	tests := []struct {
		value interface{}
		want  Status
	}{
		{"0", Clean},
		{"1", Findings},
		{2, Error},
		{"", Error},
		{"not-a-code", Error},
		{"1.5.0", Error},
	}
	for _, tt := range tests {
		if got := FromValue(tt.value); got.Status != tt.want {
			t.Errorf("FromValue(%v).Status = %v, want %v", tt.value, got.Status, tt.want)
		}
	}
}

func TestFromValueCorruptedNeverProceeds(t *testing.T) {
	if CanProceed(FromValue("garbage"), "LOW,MEDIUM", []string{"LOW,MEDIUM"}) {
		t.Error("an unparseable scan status must not open the gate")
	}
}

func TestCanProceed(t *testing.T) {
	tolerated := []string{"LOW", "LOW,MEDIUM"}
	tests := []struct {
		code   int
		filter string
		want   bool
	}{
		{0, "LOW,MEDIUM", true},
		{0, "CRITICAL", true},
		{1, "LOW,MEDIUM", true},
		{1, "CRITICAL", false},
		{2, "LOW,MEDIUM", false},
		{2, "CRITICAL", false},
		{3, "LOW,MEDIUM", false},
		{3, "CRITICAL", false},
	}
	for _, tt := range tests {
		got := CanProceed(FromExitCode(tt.code), tt.filter, tolerated)
		if got != tt.want {
			t.Errorf("CanProceed(code=%d, filter=%q) = %v, want %v", tt.code, tt.filter, got, tt.want)
		}
	}
}

func TestToleratedNormalization(t *testing.T) {
	if !Tolerated("low,medium", []string{" LOW,MEDIUM "}) {
		t.Error("matching should ignore case and surrounding space")
	}
	if Tolerated("LOW", []string{"LOW,MEDIUM"}) {
		t.Error("the filter string is one entry, not a severity list to intersect")
	}
}

func TestScanStatusString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "CLEAN"},
		{1, "FINDINGS"},
		{9, "ERROR"},
	}
	for _, tt := range tests {
		if got := FromExitCode(tt.code).String(); got != tt.want {
			t.Errorf("FromExitCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}
