package llm

import "testing"

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `{"agent":"self"}`, want: `{"agent":"self"}`},
		{name: "fenced", input: "```json\n{\"agent\":\"self\"}\n```", want: `{"agent":"self"}`},
		{name: "bare fence", input: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "whitespace", input: "  {\"a\":1}  ", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.input); got != tt.want {
				t.Fatalf("CleanJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
