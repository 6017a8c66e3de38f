package importer

import (
	"regexp"
	"strconv"
	"strings"
)

// durationPattern accepts optional day, hour, minute and second tokens in
// that order, separated by single spaces: "1d 2h 3m 4s", "2h 30m", "45s".
var durationPattern = regexp.MustCompile(`^(?:(\d+d)?((^|\s)\d+h)?((^|\s)\d+m)?((^|\s)\d+s)?)$`)

// validDuration reports whether the value matches the duration grammar.
func validDuration(value string) bool {
	return durationPattern.MatchString(value)
}

// durationToSeconds converts a duration-grammar value to a total second
// count. Tokens that are absent contribute zero.
func durationToSeconds(value string) int64 {
	var total int64
	for _, token := range strings.Fields(value) {
		if len(token) < 2 {
			continue
		}
		amount, err := strconv.ParseInt(token[:len(token)-1], 10, 64)
		if err != nil {
			continue
		}
		switch token[len(token)-1] {
		case 'd':
			total += amount * 86400
		case 'h':
			total += amount * 3600
		case 'm':
			total += amount * 60
		case 's':
			total += amount
		}
	}
	return total
}
