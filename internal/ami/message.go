package ami

import (
	"strings"
)

// crlf terminates every header line on the wire; a bare crlf ends a message.
const crlf = "\r\n"

// Header is a single "Key: Value" line of an AMI message.
type Header struct {
	Name  string
	Value string
}

// Action is an outbound AMI command. Headers keep insertion order because
// the manager protocol is sensitive to it for some actions.
type Action struct {
	name    string
	headers []Header
}

// NewAction creates an action with the given Action header value.
func NewAction(name string) *Action {
	return &Action{name: name}
}

// Add appends a header, preserving order. Repeated names are allowed; the
// Variable header in particular appears once per channel variable.
func (a *Action) Add(name, value string) *Action {
	a.headers = append(a.headers, Header{Name: name, Value: value})
	return a
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.name
}

// Headers returns the ordered header list.
func (a *Action) Headers() []Header {
	return a.headers
}

// Serialize renders the action as wire text: CRLF-terminated header lines
// followed by exactly one blank line.
func (a *Action) Serialize() string {
	var b strings.Builder
	b.WriteString("Action: ")
	b.WriteString(a.name)
	b.WriteString(crlf)
	for _, h := range a.headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return b.String()
}

// Response is one parsed AMI message: the raw lines plus a header map.
// Events and command acknowledgments share this shape.
type Response struct {
	Fields map[string]string
	Lines  []string
}

// parseMessage splits raw message lines into header fields. Lines that do
// not look like "Key: Value" are kept in Lines but produce no field.
func parseMessage(lines []string) Response {
	fields := make(map[string]string, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return Response{Fields: fields, Lines: lines}
}

// Get returns a header value, or the empty string when absent.
func (r Response) Get(name string) string {
	return r.Fields[name]
}

// IsSuccess reports whether the Response header equals Success exactly.
// Matching the header value rather than scanning the whole text keeps a
// free-text field containing the word from being misread as an ack.
func (r Response) IsSuccess() bool {
	return r.Fields["Response"] == "Success"
}

// EventName returns the Event header for list members, empty otherwise.
func (r Response) EventName() string {
	return r.Fields["Event"]
}
