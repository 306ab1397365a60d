package errors

import (
	"regexp"
	"strings"
)

var (
	hexColorRegex  = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	funcColorRegex = regexp.MustCompile(`^(rgb|rgba|hsl|hsla)\(\s*[0-9.]+%?(\s*[,/ ]\s*[0-9.]+%?){2,3}\s*\)$`)
	namedColorRe   = regexp.MustCompile(`^[a-zA-Z]{3,24}$`)
)

// ValidateColor validates a CSS colour before it is written into a style block.
// Accepted forms are hex (#rgb, #rgba, #rrggbb, #rrggbbaa), rgb()/rgba()/hsl()/hsla()
// with numeric arguments, and bare keywords such as "red" or "goldenrod".
// Anything else is rejected so that it cannot break out of the style rule.
func ValidateColor(color string) error {
	c := strings.TrimSpace(color)
	if c == "" {
		return New(ErrCodeInvalidColor, "color cannot be empty")
	}
	if hexColorRegex.MatchString(c) || funcColorRegex.MatchString(strings.ToLower(c)) || namedColorRe.MatchString(c) {
		return nil
	}
	return New(ErrCodeInvalidColor, "unsupported color value: %q", color)
}

// boardIDRegex matches identifiers that are safe to use as a CSS class prefix.
var boardIDRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,63}$`)

// ValidateBoardID validates the identifier passed to the renderer. The
// renderer derives CSS class names from it, so it must be a plain identifier.
func ValidateBoardID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "board id cannot be empty")
	}
	if !boardIDRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid board id: %q", id)
	}
	return nil
}
