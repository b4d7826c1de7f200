package console

import (
	"fmt"

	"github.com/fatih/color"
)

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Level renders a pin level as a colored 1 or 0.
func Level(high bool) string {
	if high {
		return Green("1")
	}
	return Yellow("0")
}

// Hex renders a byte as a bold 0x-prefixed value.
func Hex(b byte) string {
	return Bold(fmt.Sprintf("%#02x", b))
}
