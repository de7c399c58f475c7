package gitlog

import (
	"regexp"
	"strings"
)

// CommitMarker is the sentinel the log format injects before each commit
// header. It is unlikely to appear in commit metadata, and the path validator
// rejects anything carrying the reserved prefix.
const CommitMarker = "__LFCA_COMMIT__"

const internalPrefix = "__LFCA_"

var (
	hex40Re       = regexp.MustCompile(`^[0-9a-f]{40}$`)
	validStatusRe = regexp.MustCompile(`^([AMDTUXB]|[RC]\d{2,3})$`)
	renameCodeRe  = regexp.MustCompile(`^[RC]\d{2,3}$`)
	timestampRe   = regexp.MustCompile(`^\d{9,10}$`)
)

// IsValidStatus reports whether token is a valid git status code: one of
// A/M/D/T/U/X/B, or R/C followed by a 2-3 digit similarity percentage.
func IsValidStatus(token string) bool {
	if !validStatusRe.MatchString(token) {
		return false
	}
	if len(token) > 1 {
		// Similarity percentage must be 0-100.
		pct := 0
		for _, c := range token[1:] {
			pct = pct*10 + int(c-'0')
		}
		if pct > 100 {
			return false
		}
	}
	return true
}

// IsValidCommitOID reports whether token looks like a full 40-hex commit id.
func IsValidCommitOID(token string) bool {
	return hex40Re.MatchString(token)
}

// IsValidPath rejects tokens that are obviously parser desynchronization
// masquerading as paths: status codes, commit ids, timestamps, bare emails,
// and the parser's own markers. With strict enabled, short alphabetic tokens
// and short tokens without a slash or dot are also rejected.
func IsValidPath(path string, strict bool) bool {
	if path == "" || len(path) < 2 {
		return false
	}
	if renameCodeRe.MatchString(path) {
		return false
	}
	if hex40Re.MatchString(path) {
		return false
	}
	if timestampRe.MatchString(path) {
		return false
	}
	if strings.Contains(path, "@") && !strings.Contains(path, "/") {
		return false
	}
	if strings.HasPrefix(path, internalPrefix) {
		return false
	}

	if strict {
		if len(path) <= 3 && isAlpha(path) {
			return false
		}
		if !strings.ContainsAny(path, "/.") && len(path) < 10 {
			return false
		}
	}

	return true
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// IsRenameStatus reports whether the status opens a rename/copy change,
// which carries two path tokens instead of one.
func IsRenameStatus(status string) bool {
	return strings.HasPrefix(status, "R") || strings.HasPrefix(status, "C")
}
