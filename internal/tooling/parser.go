package tooling

import "strings"

// Call syntax, consumed from model output and described back to the model in
// the system preprompt. A call is a quoted sentinel line followed by a fenced
// block carrying the content:
//
//	> ⚙a1b2/code/exec
//	```go
//	1 + 1
//	```
//
// The format must stay bit-exact; models are briefed on it verbatim.
const (
	// CallMarker opens a call line: quote marker plus emoji sentinel.
	CallMarker = "> ⚙"

	// Fence delimits the content block. An optional language tag after the
	// opening fence is tolerated and discarded.
	Fence = "```"
)

// rawCall is an unresolved parse product of scanCalls.
type rawCall struct {
	id      string
	tool    string
	command string
	content string
	raw     string
}

// scanCalls finds every well-formed call span in text, in document order.
// It is a line scanner rather than one monolithic pattern: first the sentinel
// line, then the next fence pair. Prose and whitespace around spans are
// ignored; a sentinel line without a following fenced block is not a call.
func scanCalls(text string) []rawCall {
	lines := strings.Split(text, "\n")
	var calls []rawCall

	for i := 0; i < len(lines); i++ {
		header := strings.TrimSpace(lines[i])
		rest, ok := strings.CutPrefix(header, CallMarker)
		if !ok {
			continue
		}
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			continue
		}

		// Locate the opening fence; blank lines in between are tolerated.
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[j]), Fence) {
			continue
		}

		// Collect until the closing fence. An unterminated fence means
		// the span is not a call.
		k := j + 1
		var content []string
		for k < len(lines) && strings.TrimSpace(lines[k]) != Fence {
			content = append(content, lines[k])
			k++
		}
		if k >= len(lines) {
			continue
		}

		calls = append(calls, rawCall{
			id:      strings.TrimSpace(parts[0]),
			tool:    strings.TrimSpace(parts[1]),
			command: strings.TrimSpace(parts[2]),
			content: strings.Join(content, "\n"),
			raw:     strings.Join(lines[i:k+1], "\n"),
		})
		i = k
	}
	return calls
}
