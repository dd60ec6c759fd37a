package downloader

import (
	"log/slog"
	"regexp"
	"time"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// ResolvePathTemplate substitutes date/time placeholders in a destination path
// template: {YYYY} {YY} {MM} {DD} {HH} {mm} {SS}. A template containing an
// unknown placeholder is returned unchanged, with a warning, so a typo never
// scatters downloads across half-resolved directories.
func ResolvePathTemplate(template string, now time.Time, logger *slog.Logger) string {
	known := map[string]string{
		"YYYY": now.Format("2006"),
		"YY":   now.Format("06"),
		"MM":   now.Format("01"),
		"DD":   now.Format("02"),
		"HH":   now.Format("15"),
		"mm":   now.Format("04"),
		"SS":   now.Format("05"),
	}

	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	for _, match := range matches {
		if _, ok := known[match[1]]; !ok {
			logger.Warn("Unknown placeholder in path template, using literal path",
				slog.String("placeholder", match[1]),
				slog.String("template", template),
			)
			return template
		}
	}

	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return known[name]
	})

	return resolved
}
