// Package aprs formats the APRS-IS login and message lines used to deliver alerts.
package aprs

import (
	"fmt"
	"strings"
)

// MaxMessageText is the longest text an APRS message may carry.
const MaxMessageText = 67

// CalculatePasscode calculates the APRS-IS passcode for a given callsign
// using the pairwise XOR algorithm
func CalculatePasscode(callsign string) int {
	// Prepare the callsign: use only base callsign (no SSID) and convert to uppercase
	base := strings.ToUpper(strings.Split(callsign, "-")[0])

	// Initialize with 0x73E2
	code := 0x73E2

	// Process characters in pairs
	for i := 0; i < len(base); i += 2 {
		c1 := base[i]
		var c2 byte = 0
		if i+1 < len(base) {
			c2 = base[i+1]
		}
		code ^= int(c1) << 8
		code ^= int(c2)
	}

	return code & 0x7FFF
}

// Login builds the APRS-IS login line. An empty passcode is derived from the callsign.
func Login(callsign, passcode, software, version string) string {
	if passcode == "" {
		passcode = fmt.Sprint(CalculatePasscode(callsign))
	}
	return fmt.Sprintf("user %v pass %v vers %v %v\r\n", strings.ToUpper(callsign), passcode, software, version)
}

// Message builds a third-party message packet from one station to another.
// The addressee is padded to nine characters, the text is truncated to
// MaxMessageText, and characters the protocol reserves are replaced.
func Message(from, to, text, msgID string) string {
	addressee := strings.ToUpper(to)
	if len(addressee) > 9 {
		addressee = addressee[:9]
	}

	text = strings.Map(func(r rune) rune {
		switch r {
		case '|', '~', '{':
			return '-'
		case '\r', '\n':
			return ' '
		}
		return r
	}, text)
	if len(text) > MaxMessageText {
		text = text[:MaxMessageText]
	}

	pkt := fmt.Sprintf("%s>APRS,TCPIP*::%-9s:%s", strings.ToUpper(from), addressee, text)
	if msgID != "" {
		pkt += "{" + msgID
	}
	return pkt + "\r\n"
}
