package codeview

import (
	"strings"
)

// NameRule is a set of ways a public definition's name may differ from
// the CodeView name it stands for.
type NameRule uint8

// Name rules
const (
	// MatchExact accepts identical names. It is always in effect.
	MatchExact NameRule = 1 << iota

	// MatchUnderscore accepts a public with one extra leading underscore.
	MatchUnderscore

	// MatchFoldCase accepts names differing only in letter case.
	MatchFoldCase

	// MatchStdcall accepts a public carrying an @n argument size suffix.
	MatchStdcall
)

// DefaultNameRules are the rules used unless configured otherwise.
const DefaultNameRules = MatchExact | MatchUnderscore

// Match reports whether public, as spelled in a public definition,
// refers to name under the rules r.
func (r NameRule) Match(name, public string) bool {
	if name == public {
		return true
	}
	if r&MatchStdcall != 0 {
		if i := strings.LastIndexByte(public, '@'); i > 0 && isDigits(public[i+1:]) {
			public = public[:i]
		}
	}
	eq := func(a, b string) bool {
		if r&MatchFoldCase != 0 {
			return strings.EqualFold(a, b)
		}
		return a == b
	}
	if eq(name, public) {
		return true
	}
	if r&MatchUnderscore != 0 && strings.HasPrefix(public, "_") && eq(name, public[1:]) {
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (r NameRule) String() string {
	var parts []string
	for _, rule := range []struct {
		bit  NameRule
		name string
	}{
		{MatchExact, "exact"},
		{MatchUnderscore, "underscore"},
		{MatchFoldCase, "foldcase"},
		{MatchStdcall, "stdcall"},
	} {
		if r&rule.bit != 0 {
			parts = append(parts, rule.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseNameRules parses a list of rule names separated by commas or bars.
func ParseNameRules(s string) (NameRule, bool) {
	r := MatchExact
	for _, f := range strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == '|' }) {
		switch strings.TrimSpace(f) {
		case "exact":
		case "underscore":
			r |= MatchUnderscore
		case "foldcase":
			r |= MatchFoldCase
		case "stdcall":
			r |= MatchStdcall
		default:
			return 0, false
		}
	}
	return r, true
}
