package normalize

import (
	"crypto/sha1" //nolint:gosec // content hash, not a security boundary
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
)

// refPatterns are tried in order against the title, then the description.
var refPatterns = []*regexp.Regexp{
	// EMSD(T)23/2025
	regexp.MustCompile(`(?i)\bEMSD[^)\s,]*\([A-Z]\)[^\s,]+`),
	// HyD(T)01/2025
	regexp.MustCompile(`\b[A-Z][A-Za-z]{1,5}\([A-Z]\)\d+/\d{4}\b`),
	// GeBIZ-MOE-2026-0231
	regexp.MustCompile(`(?i)\bGeBIZ[-\w]*\d{4}[-\w]+`),
	// ISD/EA/2026/001
	regexp.MustCompile(`\b[A-Z]{2,8}/[A-Z0-9]+(?:/[A-Z0-9]+)*/\d{4}(?:/\d+)?\b`),
	// TB2025/001
	regexp.MustCompile(`(?i)\bTB\d{4}/\d{2,4}\b`),
	// HY202514, ITQ000123456
	regexp.MustCompile(`\b[A-Z]{2,6}\d{6,}\b`),
}

var hintCache sync.Map // parsing notes → *regexp.Regexp (nil when invalid)

// hintPattern extracts a "/regex/" reference hint from parsing notes.
func hintPattern(notes string) *regexp.Regexp {
	if notes == "" {
		return nil
	}
	if v, ok := hintCache.Load(notes); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	var re *regexp.Regexp
	start := strings.Index(notes, "/")
	if start >= 0 {
		if end := strings.LastIndex(notes, "/"); end > start+1 {
			re, _ = regexp.Compile(notes[start+1 : end])
		}
	}
	hintCache.Store(notes, re)
	return re
}

// ExtractRef looks for a natural reference number using the source hint
// first and the built-in patterns second.
func ExtractRef(parsingNotes string, texts ...string) string {
	if re := hintPattern(parsingNotes); re != nil {
		for _, t := range texts {
			if m := re.FindString(t); m != "" {
				return m
			}
		}
	}
	for _, re := range refPatterns {
		for _, t := range texts {
			if m := re.FindString(t); m != "" {
				return m
			}
		}
	}
	return ""
}

// SyntheticRef derives a stable reference when a notice carries none.
func SyntheticRef(sourceID, title string) string {
	prefix := sourceID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return prefix + "-" + shortHash(title, 8)
}

// TenderID derives the tender id from its capture key so re-normalising a
// capture always addresses the same record.
func TenderID(sourceID, itemGUID string) string {
	return "tdr_" + shortHash(sourceID+"|"+itemGUID, 16)
}

func shortHash(s string, n int) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:n]
}

// NormaliseRef folds a reference for cross-source comparison.
func NormaliseRef(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
