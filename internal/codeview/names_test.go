package codeview

import "testing"

func TestNameRuleMatch(t *testing.T) {
	tests := []struct {
		rules        NameRule
		name, public string
		want         bool
	}{
		{MatchExact, "main", "main", true},
		{MatchExact, "main", "_main", false},
		{DefaultNameRules, "main", "_main", true},
		{DefaultNameRules, "main", "__main", false},
		{DefaultNameRules, "_main", "main", false},
		{DefaultNameRules, "Main", "_main", false},
		{MatchExact | MatchFoldCase, "WNDPROC", "WndProc", true},
		{DefaultNameRules | MatchFoldCase, "wndproc", "_WndProc", true},
		{MatchExact | MatchStdcall, "f", "f@8", true},
		{MatchExact | MatchStdcall, "f", "f@", false},
		{MatchExact | MatchStdcall, "f", "f@x", false},
		{DefaultNameRules | MatchStdcall, "f", "_f@12", true},
		{MatchExact, "f", "f@8", false},
	}
	for _, tt := range tests {
		if got := tt.rules.Match(tt.name, tt.public); got != tt.want {
			t.Errorf("%v.Match(%q, %q) = %v, want %v", tt.rules, tt.name, tt.public, got, tt.want)
		}
	}
}

func TestParseNameRules(t *testing.T) {
	tests := []struct {
		in   string
		want NameRule
		ok   bool
	}{
		{"", MatchExact, true},
		{"exact", MatchExact, true},
		{"underscore", DefaultNameRules, true},
		{"underscore,foldcase", DefaultNameRules | MatchFoldCase, true},
		{"stdcall | underscore", DefaultNameRules | MatchStdcall, true},
		{"soundex", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNameRules(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNameRules(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNameRuleString(t *testing.T) {
	if got := (DefaultNameRules | MatchStdcall).String(); got != "exact|underscore|stdcall" {
		t.Errorf("String() = %q", got)
	}
	r, ok := ParseNameRules(MatchFoldCase.String())
	if !ok || r != MatchExact|MatchFoldCase {
		t.Errorf("round trip = %v, %v", r, ok)
	}
}
