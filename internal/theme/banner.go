package theme

import (
	"fmt"
)

// Banner returns the canopy startup banner.
func Banner() string {
	const green = "\033[32m"
	const cyan = "\033[36m"
	const reset = "\033[0m"

	art := "" +
		green + "      /\\      /\\  /\\      /\\\n" + reset +
		green + "     /  \\    /  \\/  \\    /  \\\n" + reset +
		green + "    /____\\  /___/____\\  /____\\\n" + reset +
		cyan + "  ────────────────────────────────\n" + reset +
		"   canopy - forest structure from NAIP imagery\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
