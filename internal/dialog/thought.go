package dialog

import (
	"regexp"
	"strings"
)

// Thought span markers. Model output between the markers is internal
// reasoning: suppressed from the visible response but observable through
// thought/thought_chunk events.
const (
	ThoughtOpen  = "<thinking>"
	ThoughtClose = "</thinking>"
)

var thoughtRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(ThoughtOpen) + `(.*?)` + regexp.QuoteMeta(ThoughtClose))

// extractThoughts splits a complete reply into its visible text and the
// thought spans, for the single-shot query path.
func extractThoughts(text string) (visible string, thoughts []string) {
	for _, m := range thoughtRe.FindAllStringSubmatch(text, -1) {
		thoughts = append(thoughts, m[1])
	}
	visible = strings.TrimSpace(thoughtRe.ReplaceAllString(text, ""))
	return visible, thoughts
}

// thoughtParser is the streaming counterpart: a two-state machine (outside /
// inside a thought span) that tolerates markers split across chunk
// boundaries by holding back any trailing bytes that could open the next
// marker.
type thoughtParser struct {
	inside    bool
	carry     string
	onVisible func(string)
	onThought func(string)
}

// feed consumes one incoming chunk, emitting visible and thought fragments.
func (p *thoughtParser) feed(chunk string) {
	buf := p.carry + chunk
	p.carry = ""

	for buf != "" {
		marker := ThoughtOpen
		emit := p.onVisible
		if p.inside {
			marker = ThoughtClose
			emit = p.onThought
		}

		if i := strings.Index(buf, marker); i >= 0 {
			if i > 0 {
				emit(buf[:i])
			}
			buf = buf[i+len(marker):]
			p.inside = !p.inside
			continue
		}

		keep := partialSuffix(buf, marker)
		if out := buf[:len(buf)-keep]; out != "" {
			emit(out)
		}
		p.carry = buf[len(buf)-keep:]
		return
	}
}

// flush emits whatever is held back at end-of-stream. An unterminated
// thought is still delivered as thought content; nothing is dropped.
func (p *thoughtParser) flush() {
	if p.carry == "" {
		return
	}
	if p.inside {
		p.onThought(p.carry)
	} else {
		p.onVisible(p.carry)
	}
	p.carry = ""
}

// partialSuffix returns the length of the longest proper suffix of s that is
// also a prefix of marker, i.e. the bytes that must be held back because the
// marker may complete in the next chunk.
func partialSuffix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
