package messaging

import (
	"encoding/xml"
	"unicode/utf8"
)

// MaxMessageLength is the longest message body sent back, in characters.
const MaxMessageLength = 1600

// TruncationMarker is appended to messages cut at MaxMessageLength.
const TruncationMarker = "... (truncated for length)"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

// Truncate caps message at MaxMessageLength characters, appending the
// truncation marker when it had to cut.
func Truncate(message string) string {
	if utf8.RuneCountInString(message) <= MaxMessageLength {
		return message
	}
	return string([]rune(message)[:MaxMessageLength]) + TruncationMarker
}

// TwiML renders a messaging response carrying message, truncated to
// MaxMessageLength. An empty message renders an empty response.
func TwiML(message string) ([]byte, error) {
	resp := twimlResponse{}
	if message != "" {
		m := Truncate(message)
		resp.Message = &m
	}

	out, err := xml.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
