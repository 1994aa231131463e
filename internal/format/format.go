// Package format renders activation keys, installation ids and
// confirmation ids in their grouped display forms.
package format

import (
	"regexp"
	"strings"
)

const (
	keyGroup    = 5
	keyMaxChars = 25
	iidGroup    = 7
	iidMaxChars = 63
	cidGroup    = 6
)

var (
	nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonDigit = regexp.MustCompile(`[^0-9]`)
	iidSep   = regexp.MustCompile(`[-\s]`)
)

// ActivationKey upper-cases the alphanumeric characters of s, keeps at most
// 25 and joins them in hyphen-separated groups of five.
func ActivationKey(s string) string {
	clean := strings.ToUpper(nonAlnum.ReplaceAllString(s, ""))
	return group(truncate(clean, keyMaxChars), keyGroup, "-")
}

// InstallationID keeps at most 63 digits of s and joins them in
// hyphen-separated groups of seven.
func InstallationID(s string) string {
	clean := nonDigit.ReplaceAllString(s, "")
	return group(truncate(clean, iidMaxChars), iidGroup, "-")
}

// NormalizeInstallationID strips the display separators from an IID so it
// can be forwarded upstream.
func NormalizeInstallationID(s string) string {
	return iidSep.ReplaceAllString(strings.TrimSpace(s), "")
}

// ConfirmationIDGroups splits a CID into groups of six characters.
func ConfirmationIDGroups(cid string) []string {
	var groups []string
	for i := 0; i < len(cid); i += cidGroup {
		end := i + cidGroup
		if end > len(cid) {
			end = len(cid)
		}
		groups = append(groups, cid[i:end])
	}
	return groups
}

// IsActivationKey reports whether s is five hyphen-separated groups of five
// alphanumeric characters.
func IsActivationKey(s string) bool {
	return keyPattern.MatchString(s)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9]{5}(-[A-Za-z0-9]{5}){4}$`)

// CanonicalKey returns the display form of s when s is a 25 character
// product key in any case or grouping, and s trimmed otherwise.
func CanonicalKey(s string) string {
	s = strings.TrimSpace(s)
	clean := iidSep.ReplaceAllString(s, "")
	if len(clean) != keyMaxChars || nonAlnum.MatchString(clean) {
		return s
	}
	if key := ActivationKey(clean); IsActivationKey(key) {
		return key
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func group(s string, size int, sep string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(s); i += size {
		if i > 0 {
			b.WriteString(sep)
		}
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
