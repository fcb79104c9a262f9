package validation

import (
	"testing"
	"time"
)

func TestIsValidSlotLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		valid bool
	}{
		{
			name:  "morning slot",
			label: "10:00 AM",
			valid: true,
		},
		{
			name:  "afternoon slot",
			label: "04:30 PM",
			valid: true,
		},
		{
			name:  "24h format",
			label: "16:30",
			valid: false,
		},
		{
			name:  "empty string",
			label: "",
			valid: false,
		},
		{
			name:  "garbage",
			label: "half past ten",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidSlotLabel(tt.label)
			if got != tt.valid {
				t.Fatalf("IsValidSlotLabel(%q) = %v, want %v", tt.label, got, tt.valid)
			}
		})
	}
}

func TestSlotTimeOn(t *testing.T) {
	day := time.Date(2025, time.March, 14, 8, 15, 42, 0, time.UTC)

	got, err := SlotTimeOn(day, "02:30 PM")
	if err != nil {
		t.Fatalf("SlotTimeOn error: %v", err)
	}

	want := time.Date(2025, time.March, 14, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("SlotTimeOn = %v, want %v", got, want)
	}
}

func TestSlotTimeOn_InvalidLabel(t *testing.T) {
	day := time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)

	if _, err := SlotTimeOn(day, "25:00 XX"); err == nil {
		t.Fatalf("expected error for invalid label")
	}
}
