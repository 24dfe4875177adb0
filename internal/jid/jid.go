// Package jid provides canonicalization of WhatsApp JID-like identifiers.
// Every identifier that enters the system passes through here exactly once
// before being used as a storage key, so that all alias forms of the same
// account (device-suffixed, @lid, bare phone number) collapse to one key.
package jid

import (
	"strings"
)

const (
	// UserSuffix is the single canonical domain for user JIDs.
	UserSuffix = "@s.whatsapp.net"

	// GroupSuffix is the canonical domain for group JIDs.
	GroupSuffix = "@g.us"
)

// User maps any accepted user identifier representation to its canonical
// form: the local part with any device segment removed, re-suffixed with
// UserSuffix. A plain phone-number-like string is promoted the same way.
// Group JIDs are returned untouched so a group id is never reinterpreted as
// a user. Malformed input (empty string) is returned unchanged rather than
// reported as an error; callers check for "" before using the result as a
// key.
func User(raw string) string {
	if raw == "" {
		return raw
	}
	if IsGroup(raw) {
		return raw
	}

	local := raw
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	// user:device JIDs carry the device id after a colon.
	if colon := strings.IndexByte(local, ':'); colon >= 0 {
		local = local[:colon]
	}
	if local == "" {
		return raw
	}
	return local + UserSuffix
}

// Group returns the canonical group identifier. Values already carrying the
// group domain suffix are returned unchanged; anything else is passed
// through as-is, never reinterpreted.
func Group(raw string) string {
	return raw
}

// IsGroup reports whether the identifier refers to a group chat.
func IsGroup(raw string) bool {
	return strings.HasSuffix(raw, GroupSuffix)
}

// Phone returns the phone-number segment of a user JID (the local part
// before the domain), used for anti-fake prefix matching and @mention
// display.
func Phone(userID string) string {
	if at := strings.IndexByte(userID, '@'); at >= 0 {
		return userID[:at]
	}
	return userID
}

// FromPhone promotes a phone-number string (possibly with punctuation) to a
// full canonical user JID. Inputs already carrying a domain are canonicalized
// through User instead.
func FromPhone(number string) string {
	if strings.ContainsRune(number, '@') {
		return User(number)
	}
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + UserSuffix
}
