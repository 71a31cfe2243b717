// Package messaging turns inbound SMS and WhatsApp messages into answers.
package messaging

import "strings"

type quickReply struct {
	trigger string
	reply   string
}

// quickReplies are matched in order as case-insensitive substrings.
var quickReplies = []quickReply{
	{"hello", "Hi! I'm the ASU assistant. Ask me anything about Arizona State University!"},
	{"help", "I can answer questions about ASU academics, campus life, admissions, and more. Just ask!"},
	{"what is asu", "Arizona State University (ASU) is a public research university in Arizona, known for innovation and academic excellence."},
	{"thanks", "You're welcome! Feel free to ask more questions about ASU anytime."},
	{"thank you", "You're welcome! Happy to help with ASU information."},
}

// QuickReply returns the canned reply of the first trigger contained in
// message.
func QuickReply(message string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, q := range quickReplies {
		if strings.Contains(normalized, q.trigger) {
			return q.reply, true
		}
	}
	return "", false
}
