package media

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxTitleLen = 120

var (
	// Characters that filesystems reject outright.
	reservedChars = regexp.MustCompile("[<>:\"/\\\\|?*\n\r\t]")
	// Any run of characters outside word chars, dot and dash.
	unsafeRuns = regexp.MustCompile(`[^\p{L}\p{N}_.\-]+`)

	underscoreRuns = regexp.MustCompile(`_+`)
)

// SanitizeTitle converts an arbitrary display title into a filesystem-safe,
// length-bounded token. It is total and deterministic: any input produces a
// non-empty, safe result.
func SanitizeTitle(title string) string {
	return sanitizeTitle(title, maxTitleLen)
}

func sanitizeTitle(title string, maxLen int) string {
	// Unicode slash lookalikes break filenames just like the real thing.
	safe := strings.NewReplacer("⧸", "_", "⁄", "_").Replace(title)

	safe = reservedChars.ReplaceAllString(safe, "_")
	safe = unsafeRuns.ReplaceAllString(safe, "_")
	safe = underscoreRuns.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_.-")

	if safe == "" {
		safe = fmt.Sprintf("file_%d", time.Now().Unix())
	}

	// Truncate after collapsing so the limit is not spent on separators,
	// then trim again in case the cut left a dangling one.
	if runes := []rune(safe); len(runes) > maxLen {
		safe = strings.TrimRight(string(runes[:maxLen]), "_.-")
	}

	return safe
}
