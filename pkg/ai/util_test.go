package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type observeArgs struct {
		From string `json:"from"`
		To   string `json:"to"`
		Note string `json:"note,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  observeArgs
	}{
		{
			name:  "valid json object",
			input: `{"from":"alice@example.com","to":"bob@example.com"}`,
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
		{
			name:  "unquoted keys and single quotes",
			input: `{from: 'alice@example.com', to: 'bob@example.com'}`,
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
		{
			name:  "trailing comma",
			input: `{"from":"alice@example.com","to":"bob@example.com",}`,
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
		{
			name:  "missing endbracket",
			input: `{"from":"alice@example.com","to":"bob@example.com"`,
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{from: 'alice@example.com', to: 'bob@example.com'}"`,
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"from\": \"alice@example.com\", \"to\": \"bob@example.com\"\n}\n",
			want:  observeArgs{From: "alice@example.com", To: "bob@example.com"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got observeArgs
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.From != tc.want.From || got.To != tc.want.To {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	type recipient struct {
		Email string `json:"email"`
	}

	input := `[{email:'a@x.com'},{email:'b@x.com',}]`
	var got []recipient
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Email != "a@x.com" || got[1].Email != "b@x.com" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two recipients a,b", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type observeArgs struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	var got observeArgs
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_StringifiedWithNewlines(t *testing.T) {
	type groupArgs struct {
		People []string `json:"people"`
		Note   string   `json:"note"`
	}

	input := `"{\n  \"people\": [\"alice@example.com\", \"bob@example.com\", \"carol@example.com\"],\n  \"note\": \"weekly sync about the roadmap\"\n}\n"`
	var got groupArgs
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.People) != 3 || got.Note != "weekly sync about the roadmap" {
		t.Fatalf("UnmarshalFlexible() got = %+v", got)
	}
}
