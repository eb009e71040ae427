package jassist_test

import (
	"testing"

	"jassist-go/internal/jassist"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"top-level category", `{"category":"diary"}`, "diary"},
		{"top-level synonym", `{"category":"tarefas"}`, "todo"},
		{"top-level unknown", `{"category":"recipes"}`, "unlabeled"},
		{"list unknown", `{"classifications":[{"category":"unknown_xyz"}]}`, "unlabeled"},
		{"list first valid wins", `{"classifications":[{"category":"zzz"},{"category":"Agenda"},{"category":"diary"}]}`, "calendar"},
		{"list accented synonym", `{"classifications":[{"text":"x","category":"Reunião"}]}`, "meeting"},
		{"mock answer", `{"classifications":[{"text":"mock text","category":"diary"}]}`, "diary"},
		{"empty list falls to category", `{"classifications":[],"category":"note"}`, "note"},
		{"unlabeled is not accepted", `{"category":"unlabeled"}`, "unlabeled"},
		{"free text keyword", "this looks like a meeting note", "meeting"},
		{"json without known shape uses keywords", `{"label":"todo list"}`, "todo"},
		{"free text no keyword", "lorem ipsum", "unlabeled"},
		{"json array is not an object", `["diary"]`, "diary"},
		{"keyword order", "a reminder for my diary", "diary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jassist.ParseLabel(tt.answer); got != tt.want {
				t.Errorf("ParseLabel(%q) = %q, want %q", tt.answer, got, tt.want)
			}
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Diary", "diary", true},
		{" Calendário ", "calendar", true},
		{"notas", "note", true},
		{"contactos", "other", true},
		{"journal", "diary", true},
		{"", "", false},
		{"unlabeled", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := jassist.NormalizeCategory(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeCategory(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseLabel_AlwaysValid(t *testing.T) {
	answers := []string{"", "{", `{"category":42}`, `{"classifications":"nope"}`, "TODO: buy milk", `{"category":"Tasks"}`}
	for _, a := range answers {
		if got := jassist.ParseLabel(a); !jassist.IsValidLabel(got) {
			t.Errorf("ParseLabel(%q) = %q, not a valid label", a, got)
		}
	}
}
