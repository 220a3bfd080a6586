package dialer

import (
	"fmt"
	"strings"
)

// NormalizeNumber strips every non-digit rune from a raw phone number.
// Trunk dial strings accept digits only, so this runs before any channel
// expression is built.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChannelExpr builds the SIP dial string routing digits through a trunk.
// The trunk name must match an externally configured dialplan; nothing here
// can validate that it exists.
func ChannelExpr(digits, trunk string) string {
	return fmt.Sprintf("SIP/%s@%s", digits, trunk)
}
