package jid_test

import (
	"testing"

	"github.com/lucasvml/wishbot/internal/jid"
)

func TestUser(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already canonical",
			input:    "5511999998888@s.whatsapp.net",
			expected: "5511999998888@s.whatsapp.net",
		},
		{
			name:     "device suffix stripped",
			input:    "5511999998888:12@s.whatsapp.net",
			expected: "5511999998888@s.whatsapp.net",
		},
		{
			name:     "lid suffix replaced",
			input:    "5511999998888@lid",
			expected: "5511999998888@s.whatsapp.net",
		},
		{
			name:     "legacy c.us suffix replaced",
			input:    "5511999998888@c.us",
			expected: "5511999998888@s.whatsapp.net",
		},
		{
			name:     "bare phone number promoted",
			input:    "5511999998888",
			expected: "5511999998888@s.whatsapp.net",
		},
		{
			name:     "group jid untouched",
			input:    "120363040111222333@g.us",
			expected: "120363040111222333@g.us",
		},
		{
			name:     "empty input returned unchanged",
			input:    "",
			expected: "",
		},
		{
			name:     "suffix only returned unchanged",
			input:    "@lid",
			expected: "@lid",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := jid.User(tc.input)
			if got != tc.expected {
				t.Errorf("User(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestUserIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"5511999998888@s.whatsapp.net",
		"5511999998888:31@s.whatsapp.net",
		"5511999998888@lid",
		"5511999998888",
		"120363040111222333@g.us",
		"",
	}

	for _, in := range inputs {
		once := jid.User(in)
		twice := jid.User(once)
		if once != twice {
			t.Errorf("User is not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestUserAliasConvergence(t *testing.T) {
	t.Parallel()

	// Every historically seen alias of the same account must map to one key.
	aliases := []string{
		"5511999998888",
		"5511999998888@s.whatsapp.net",
		"5511999998888:2@s.whatsapp.net",
		"5511999998888@lid",
		"5511999998888:7@lid",
	}

	want := jid.User(aliases[0])
	for _, a := range aliases[1:] {
		if got := jid.User(a); got != want {
			t.Errorf("alias %q normalized to %q, want %q", a, got, want)
		}
	}
}

func TestGroup(t *testing.T) {
	t.Parallel()

	if got := jid.Group("120363040111222333@g.us"); got != "120363040111222333@g.us" {
		t.Errorf("Group changed a canonical group id: %q", got)
	}
	if got := jid.Group("weird-value"); got != "weird-value" {
		t.Errorf("Group reinterpreted a non-group value: %q", got)
	}
}

func TestPhone(t *testing.T) {
	t.Parallel()

	if got := jid.Phone("5511999998888@s.whatsapp.net"); got != "5511999998888" {
		t.Errorf("Phone = %q, want 5511999998888", got)
	}
	if got := jid.Phone("5511999998888"); got != "5511999998888" {
		t.Errorf("Phone on bare number = %q", got)
	}
}

func TestFromPhone(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain number", input: "5511999998888", expected: "5511999998888@s.whatsapp.net"},
		{name: "formatted number", input: "+55 (11) 99999-8888", expected: "5511999998888@s.whatsapp.net"},
		{name: "already a jid", input: "5511999998888@lid", expected: "5511999998888@s.whatsapp.net"},
		{name: "no digits", input: "abc", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := jid.FromPhone(tc.input); got != tc.expected {
				t.Errorf("FromPhone(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
