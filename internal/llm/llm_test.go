package llm

import "testing"

func TestSplitSystem(t *testing.T) {
	system, turns := SplitSystem([]Message{
		{Role: RoleSystem, Content: "first"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "second"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if system != "first\n\nsecond" {
		t.Fatalf("unexpected system prompt %q", system)
	}
	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}
