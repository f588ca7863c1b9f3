package prompts

import (
	"strings"
	"testing"

	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/policy"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name   string
		domain policy.Domain
		marker string
	}{
		{"general", policy.DomainGeneral, "health-safety policy"},
		{"wearables", policy.DomainWearables, "wearable-device data"},
		{"bci", policy.DomainBCI, "brain-computer interface"},
		{"therapy", policy.DomainTherapy, "not a therapist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := For(tt.domain)
			if !strings.Contains(p, tt.marker) {
				t.Errorf("prompt for %s missing marker %q", tt.domain, tt.marker)
			}
		})
	}

	t.Run("unknown falls back to general", func(t *testing.T) {
		if For(policy.Domain("nonsense")) != For(policy.DomainGeneral) {
			t.Error("unknown domain should return the general prompt")
		}
	})
}

func TestInject_NoSystemMessage(t *testing.T) {
	in := []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi"},
	}

	out := Inject(in, policy.DomainGeneral)
	if len(out) != len(in)+1 {
		t.Fatalf("expected %d messages, got %d", len(in)+1, len(out))
	}
	if out[0].Role != chat.RoleSystem {
		t.Errorf("expected first message to be system, got %s", out[0].Role)
	}
	if out[0].Text() != For(policy.DomainGeneral) {
		t.Error("prepended system message should carry the domain prompt")
	}
	if out[1].Text() != "hello" || out[2].Text() != "hi" {
		t.Error("original messages must keep their order and content")
	}
}

func TestInject_ExistingSystemMessages(t *testing.T) {
	in := []chat.Message{
		{Role: chat.RoleSystem, Content: "You are a pirate."},
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleSystem, Content: "Answer in French."},
	}

	out := Inject(in, policy.DomainTherapy)
	if len(out) != len(in) {
		t.Fatalf("expected %d messages, got %d", len(in), len(out))
	}

	prompt := For(policy.DomainTherapy)
	for _, i := range []int{0, 2} {
		text := out[i].Text()
		if !strings.HasPrefix(text, prompt+"\n\n") {
			t.Errorf("system message %d should be prefixed with the safety prompt", i)
		}
	}
	if !strings.HasSuffix(out[0].Text(), "You are a pirate.") {
		t.Error("original system content must be preserved after the prompt")
	}
	if out[1].Text() != "hello" {
		t.Error("non-system messages must pass through unchanged")
	}
}

func TestInject_DoesNotMutateInput(t *testing.T) {
	in := []chat.Message{
		{Role: chat.RoleSystem, Content: "original"},
	}

	Inject(in, policy.DomainGeneral)
	if in[0].Text() != "original" {
		t.Error("Inject must not mutate the caller's slice")
	}
}
