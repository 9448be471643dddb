package polza

import (
	"fmt"
	"strings"
)

// EditInstruction wraps a user prompt so that image models edit the supplied
// photo instead of returning it unchanged.
func EditInstruction(prompt string) string {
	p := strings.TrimSpace(prompt)
	return fmt.Sprintf(
		"Instruction: %s. Task: Completely transform and edit the person in this photo according to: %s. Style: Realistic, high quality, professional photo edit.",
		p, p,
	)
}
