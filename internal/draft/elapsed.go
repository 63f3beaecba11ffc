package draft

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// Elapsed returns the time between two "HH:MM" clock readings as "H:MM".
// An end earlier than the start is taken to be on the next day. Either
// input empty yields "". Unparseable hour or minute parts count as 0.
func Elapsed(start, end string) string {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return ""
	}
	diff := clockMinutes(end) - clockMinutes(start)
	if diff < 0 {
		diff += minutesPerDay
	}
	if diff < 0 {
		// only reachable with readings outside 00:00-23:59
		diff = (diff%minutesPerDay + minutesPerDay) % minutesPerDay
	}
	return fmt.Sprintf("%d:%02d", diff/60, diff%60)
}

func clockMinutes(s string) int {
	h, m, _ := strings.Cut(strings.TrimSpace(s), ":")
	return atoiOrZero(h)*60 + atoiOrZero(m)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
