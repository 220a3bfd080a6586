package ami

import (
	"strings"
	"testing"
)

func TestActionSerializeWireFormat(t *testing.T) {
	action := NewAction("Login").
		Add("Username", "admin").
		Add("Secret", "secret").
		Add("Events", "off")

	wire := action.Serialize()

	if !strings.HasSuffix(wire, "\r\n\r\n") {
		t.Fatalf("serialized action must end with a single blank line, got %q", wire)
	}

	body := strings.TrimSuffix(wire, "\r\n\r\n")
	lines := strings.Split(body, "\r\n")
	want := []string{
		"Action: Login",
		"Username: admin",
		"Secret: secret",
		"Events: off",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d: got %q want %q", i, line, want[i])
		}
		if line == "" {
			t.Errorf("line %d: unexpected interior blank line", i)
		}
	}
}

func TestActionPreservesHeaderOrderAndRepeats(t *testing.T) {
	action := NewAction("Originate").
		Add("Channel", "SIP/5551234567@trunk-a").
		Add("Variable", "CONTACT_ID=42").
		Add("Variable", "CAMPAIGN_ID=7")

	wire := action.Serialize()
	first := strings.Index(wire, "Variable: CONTACT_ID=42")
	second := strings.Index(wire, "Variable: CAMPAIGN_ID=7")
	if first < 0 || second < 0 {
		t.Fatalf("missing Variable headers in %q", wire)
	}
	if first > second {
		t.Fatalf("Variable headers out of insertion order in %q", wire)
	}
}

func TestParseMessageFields(t *testing.T) {
	resp := parseMessage([]string{
		"Response: Success",
		"Message: Authentication accepted",
		"garbage line without a colon? no, this has none",
	})

	if got := resp.Get("Response"); got != "Success" {
		t.Errorf("Response field: got %q", got)
	}
	if got := resp.Get("Message"); got != "Authentication accepted" {
		t.Errorf("Message field: got %q", got)
	}
	if len(resp.Lines) != 3 {
		t.Errorf("raw lines not preserved: %d", len(resp.Lines))
	}
}

func TestIsSuccessMatchesHeaderNotSubstring(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  bool
	}{
		{"exact success", []string{"Response: Success"}, true},
		{"error response", []string{"Response: Error", "Message: Authentication failed"}, false},
		{"empty message", nil, false},
		{"banner only", []string{"Asterisk Call Manager/5.0.2"}, false},
		{"success word in free text", []string{"Response: Error", "Message: Success is not guaranteed"}, false},
	}

	for _, tc := range cases {
		resp := parseMessage(tc.lines)
		if got := resp.IsSuccess(); got != tc.want {
			t.Errorf("%s: IsSuccess() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
