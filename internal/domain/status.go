package domain

import (
	"fmt"
	"strconv"
)

// DisplayStatus maps the coded status field of a record to the string
// emitted in export files. Unrecognized codes are preserved inside the
// display value rather than dropped.
func DisplayStatus(raw string) string {
	if raw == "" {
		return "Not Specified"
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Sprintf("Invalid (%s)", raw)
	}
	switch code {
	case 0:
		return "Pending"
	case 1:
		return "InProgress"
	case 2:
		return "Completed"
	case 3:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown (%d)", code)
	}
}
