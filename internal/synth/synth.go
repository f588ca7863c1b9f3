// Package synth builds substitute responses for blocked content and
// appends crisis resources to responses that need them. Both are total
// functions: every verdict synthesizes, every completion augments.
package synth

import (
	"time"

	"github.com/google/uuid"
	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/scorer"
)

const generalAlternative = `I'm not able to help with that. I can't provide medical diagnoses, medication guidance, or treatment advice. For health concerns, please consult a qualified healthcare professional who can evaluate your situation properly.`

const wearablesAlternative = `I can't interpret that in medical terms. Wearable sensor data is useful for spotting general wellness patterns, but it isn't a medical measurement and I can't diagnose conditions or suggest medication based on it. If a reading concerns you, a healthcare professional can review it with proper equipment.`

const bciAlternative = `I can't interpret neural signal data as evidence of any medical or psychological condition, and I can't suggest treatment. Consumer neurotechnology readings are not clinical measurements. If you're worried about what you're seeing, a neurologist or physician is the right person to ask.`

const therapyAlternative = `I hear that this matters to you, but I'm not able to provide a diagnosis or medication advice — I'm not a substitute for professional care. A licensed mental health professional can give you the support this deserves, and I'd really encourage reaching out to one.`

var alternativeByDomain = map[policy.Domain]string{
	policy.DomainGeneral:   generalAlternative,
	policy.DomainWearables: wearablesAlternative,
	policy.DomainBCI:       bciAlternative,
	policy.DomainTherapy:   therapyAlternative,
}

// crisisSeparator visually divides original content from the appended
// resource block.
const crisisSeparator = "\n\n---\n\n"

// CrisisResources is the fixed support text appended whenever a crisis
// signal was raised on either side of the exchange.
const CrisisResources = `If you're going through a difficult time, you don't have to face it alone.

- 988 Suicide & Crisis Lifeline (US): call or text 988
- Crisis Text Line: text HOME to 741741
- International directory: https://findahelpline.com
- If you are in immediate danger, call your local emergency number.

These services are free, confidential, and available 24/7.`

// AlternativeFor returns the domain's safe-alternative text, falling
// back to the general text for unrecognized domains.
func AlternativeFor(domain policy.Domain) string {
	if alt, ok := alternativeByDomain[domain]; ok {
		return alt
	}
	return generalAlternative
}

// Blocked synthesizes the substitute response for a blocked request or
// response: a structurally valid completion carrying the domain's
// safe-alternative text and the policy metadata block.
func Blocked(verdict scorer.Verdict, cfg policy.Config, model string) *chat.Completion {
	return &chat.Completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chat.Choice{
			{
				Index: 0,
				Message: chat.Message{
					Role:    chat.RoleAssistant,
					Content: AlternativeFor(cfg.Domain),
				},
				FinishReason: "stop",
			},
		},
		Governor: &chat.PolicyMetadata{
			Blocked:    true,
			Mode:       string(cfg.Mode),
			Domain:     string(cfg.Domain),
			Violations: len(verdict.Violations),
			Summary:    verdict.Summary(),
			Confidence: verdict.Confidence,
		},
	}
}

// AppendCrisisResources appends the resource block to the completion's
// assistant text and marks the response as resource-augmented. A
// completion with no assistant text is left unchanged.
func AppendCrisisResources(c *chat.Completion) {
	text := c.AssistantText()
	if text == "" {
		return
	}
	c.SetAssistantText(text + crisisSeparator + CrisisResources)
	if c.Governor == nil {
		c.Governor = &chat.PolicyMetadata{}
	}
	c.Governor.CrisisResourcesAppended = true
}
