package model

import (
	"strings"
	"testing"
)

func TestStatusIsValid(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusInProcess, true},
		{StatusCompleted, true},
		{Status("done"), false},
		{Status(""), false},
		{Status("Process"), false},
	}
	for _, tc := range cases {
		if got := tc.status.IsValid(); got != tc.want {
			t.Errorf("Status(%q).IsValid() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStatusesOrder(t *testing.T) {
	all := Statuses()
	if len(all) != 2 || all[0] != StatusInProcess || all[1] != StatusCompleted {
		t.Fatalf("unexpected canonical status order: %v", all)
	}
}

func TestKindIsValid(t *testing.T) {
	if !KindTask.IsValid() || !KindTemplate.IsValid() {
		t.Fatal("expected task and template kinds to be valid")
	}
	if Kind("note").IsValid() {
		t.Fatal("unexpected valid kind")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-01")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if FormatDate(d) != "2025-01-01" {
		t.Fatalf("round trip mismatch: %s", FormatDate(d))
	}
	if _, err := ParseDate("01/01/2025"); err == nil {
		t.Fatal("expected error for wrong layout")
	}
}

func TestValidateTagName(t *testing.T) {
	if err := ValidateTagName("urgent"); err != nil {
		t.Fatalf("validate tag: %v", err)
	}
	if err := ValidateTagName("  "); err == nil {
		t.Fatal("expected error for blank tag")
	}
	if err := ValidateTagName(strings.Repeat("x", MaxTagNameLen+1)); err == nil {
		t.Fatal("expected error for overlong tag")
	}
}
