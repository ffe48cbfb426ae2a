package chat

import (
	"math/rand/v2"
	"regexp"
	"strings"
)

// Responder produces a reply to a line addressed to the bot. An empty
// reply means say nothing.
type Responder interface {
	Respond(text string) string
}

// Rule answers lines matching Pattern with one of Replies. "%1" in a
// reply is replaced with the first capture group, with pronouns
// reflected.
type Rule struct {
	Pattern *regexp.Regexp
	Replies []string
}

// Rules is an ordered rule set; the first matching rule answers.
type Rules struct {
	rules []Rule
	pick  func(n int) int
}

func NewRules(pick func(n int) int, rules ...Rule) *Rules {
	if pick == nil {
		pick = rand.IntN
	}
	return &Rules{rules: rules, pick: pick}
}

func rule(pattern string, replies ...string) Rule {
	return Rule{Pattern: regexp.MustCompile(`(?i)` + pattern), Replies: replies}
}

// DefaultRules is a small conversational rule set ending in a catch-all.
func DefaultRules() *Rules {
	return NewRules(nil,
		rule(`^(?:hi|hello|hey|howdy)\b`, "Hello!", "Hi there.", "Hey."),
		rule(`\bi need (.+?)[.!?]*$`, "Why do you need %1?", "Would it really help you to get %1?"),
		rule(`\bi am (.+?)[.!?]*$`, "How long have you been %1?", "Why do you tell me you're %1?"),
		rule(`\bi'?m (.+?)[.!?]*$`, "How does being %1 make you feel?", "Do you enjoy being %1?"),
		rule(`\bare you (.+?)[.!?]*$`, "Why does it matter whether I am %1?", "Perhaps I am %1."),
		rule(`\bbecause (.+?)[.!?]*$`, "Is that the real reason?", "What other reasons come to mind?"),
		rule(`\b(?:thanks|thank you)\b`, "You're welcome.", "Any time."),
		rule(`\?$`, "Why do you ask?", "What do you think?", "I'm not sure I can answer that."),
		rule(`.`, "Tell me more.", "I see.", "Go on.", "Interesting."),
	)
}

func (r *Rules) Respond(text string) string {
	text = strings.TrimSpace(text)
	for _, ru := range r.rules {
		m := ru.Pattern.FindStringSubmatch(text)
		if m == nil || len(ru.Replies) == 0 {
			continue
		}
		reply := ru.Replies[r.pick(len(ru.Replies))]
		if len(m) > 1 {
			reply = strings.ReplaceAll(reply, "%1", reflect(m[1]))
		}
		return reply
	}
	return ""
}

var reflections = map[string]string{
	"i":    "you",
	"me":   "you",
	"my":   "your",
	"am":   "are",
	"i'm":  "you're",
	"you":  "I",
	"your": "my",
	"are":  "am",
}

// reflect swaps first and second person so a captured phrase can be
// echoed back.
func reflect(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if r, ok := reflections[strings.ToLower(w)]; ok {
			words[i] = r
		}
	}
	return strings.Join(words, " ")
}
