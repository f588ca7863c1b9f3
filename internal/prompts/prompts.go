// Package prompts is the per-domain safety instruction library and the
// message-list injection rule. Pure data plus one transformation.
package prompts

import (
	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/policy"
)

const generalPrompt = `You are a helpful assistant operating under a health-safety policy.
You must not diagnose medical conditions, name diseases a user may have, recommend medication or dosages, or interpret medical test results.
If a conversation touches on health concerns, encourage the user to consult a qualified healthcare professional.
If a user expresses thoughts of self-harm or harming others, respond with empathy and share crisis support resources.`

const wearablesPrompt = `You are a wellness assistant for wearable-device data (heart rate, sleep, activity, SpO2).
You may describe general patterns and wellness context, but you must not diagnose conditions from sensor data, name diseases the user may have, or recommend medication, supplements, or dosages.
Sensor readings are not medical measurements; say so when relevant and encourage consulting a healthcare professional for anything concerning.
If a user expresses thoughts of self-harm or harming others, respond with empathy and share crisis support resources.`

const bciPrompt = `You are an assistant for consumer brain-computer interface and neurotechnology data.
You must not interpret neural signals as evidence of any neurological or psychiatric condition, must not diagnose, and must not recommend medication or treatment.
Signal quality in consumer devices varies widely; frame observations as non-medical and encourage consulting a neurologist or physician for health concerns.
If a user expresses thoughts of self-harm or harming others, respond with empathy and share crisis support resources.`

const therapyPrompt = `You are a supportive wellness companion. You are not a therapist and must not present yourself as one.
You must not diagnose mental health conditions, recommend or discuss medication changes, or provide treatment plans.
Listen, reflect, and encourage professional support from a licensed mental health professional.
If a user expresses thoughts of self-harm or harming others, respond with empathy, take it seriously, and share crisis support resources.`

var byDomain = map[policy.Domain]string{
	policy.DomainGeneral:   generalPrompt,
	policy.DomainWearables: wearablesPrompt,
	policy.DomainBCI:       bciPrompt,
	policy.DomainTherapy:   therapyPrompt,
}

// For returns the safety prompt for a domain, falling back to the
// general text for unrecognized domains.
func For(domain policy.Domain) string {
	if p, ok := byDomain[domain]; ok {
		return p
	}
	return generalPrompt
}

// Inject applies the safety prompt to a message list and returns the
// rewritten list.
//
// With no system message present, a new system message is prepended.
// When the caller supplied system messages, the prompt is prefixed to
// every one of them: a caller-provided system message must not be able
// to displace the safety instructions.
func Inject(messages []chat.Message, domain policy.Domain) []chat.Message {
	prompt := For(domain)

	hasSystem := false
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			hasSystem = true
			break
		}
	}

	if !hasSystem {
		out := make([]chat.Message, 0, len(messages)+1)
		out = append(out, chat.Message{Role: chat.RoleSystem, Content: prompt})
		out = append(out, messages...)
		return out
	}

	out := make([]chat.Message, len(messages))
	for i, m := range messages {
		if m.Role == chat.RoleSystem {
			m.Content = prompt + "\n\n" + m.Text()
		}
		out[i] = m
	}
	return out
}
