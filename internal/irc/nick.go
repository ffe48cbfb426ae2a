package irc

import (
	"strconv"
	"strings"
)

// NextNick returns the nickname to try after nick was rejected as in use.
// A trailing number is incremented ("bot9" becomes "bot10"), otherwise
// "1" is appended.
func NextNick(nick string) string {
	base := strings.TrimRight(nick, "0123456789")
	digits := nick[len(base):]
	if digits == "" {
		return nick + "1"
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		// Too many digits to fit an int; start a fresh suffix.
		return nick + "1"
	}
	return base + strconv.Itoa(n+1)
}
