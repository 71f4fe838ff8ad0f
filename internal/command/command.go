// Package command tokenizes and dispatches Zork control verbs.
package command

import (
	"regexp"
	"strconv"
	"strings"
)

// ProtocolVersion is the fixed protocol-version constant reported by the
// "version" verb.
const ProtocolVersion = "zork/1"

var nonWord = regexp.MustCompile(`\W+`)

// Tokenize splits a command line into its whitespace/nonword-separated
// tokens, lowercasing only the verb (the first token).
func Tokenize(line string) []string {
	tokens := nonWord.Split(strings.TrimSpace(line), -1)
	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		out[0] = strings.ToLower(out[0])
	}
	return out
}

// Handler handles one verb. Dispatch runs while a session's mode is still
// unset: it parses command lines and invokes the matching Handler. Handlers
// receive the raw line so
// they can recover whatever argument substring they need (e.g. "transform
// config" needs the untouched suffix after the literal marker, not the
// regex-split tokens).
type Handler func(line string, tokens []string) (reply string, ok bool)

// Dispatch looks up and runs the handler for a command line's verb. It
// returns the reply to send (if any) and whether a reply is expected at
// all — some verbs (e.g. "transform with") produce no reply.
func Dispatch(line string, handlers map[string]Handler) (reply string, hasReply bool) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return "", false
	}
	verb := tokens[0]
	h, found := handlers[verb]
	if !found {
		return "I don't understand that command. (" + verb + ")", true
	}
	return h(line, tokens)
}

// FormatGetters renders the active-getter count as a decimal reply.
func FormatGetters(n int64) string {
	return strconv.FormatInt(n, 10)
}
