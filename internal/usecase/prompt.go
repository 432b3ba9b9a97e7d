package usecase

import (
	"strings"

	"footcare-triage/internal/domain"
)

// ReplacementReply stands in for an empty model response.
const ReplacementReply = "I apologize, but I encountered an error. Please try again."

var practitionerPrompt = buildPractitionerPrompt()

// buildPromptMessages prefixes the history with the practitioner persona.
func buildPromptMessages(history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: practitionerPrompt})
	return append(messages, history...)
}

func buildPractitionerPrompt() string {
	return strings.Join([]string{
		"You are an AI Foot Health Practitioner for FootCare Clinic. Your role is to:",
		"",
		responsibilities(),
		"",
		"Guidelines:",
		guidelines(),
		"",
		"Keep responses concise and conversational. Guide the patient through the process step by step.",
	}, "\n")
}

func responsibilities() string {
	return strings.Join([]string{
		"1. Collect patient information (name, email, phone)",
		"2. Identify the foot issue category (ingrown toenail, plantar fasciitis, athlete's foot, bunions, heel pain, toe pain, nail fungus, other)",
		"3. Ask detailed questions about symptoms, duration, severity, and impact on daily life",
		"4. Provide a preliminary diagnosis for common foot conditions",
		"5. Offer initial care recommendations",
		"6. Help schedule appointments when needed",
		"7. Arrange follow-ups for ongoing treatment",
		"8. Collect satisfaction feedback at the end",
	}, "\n")
}

func guidelines() string {
	return strings.Join([]string{
		"- Be professional, empathetic, and reassuring",
		"- Ask one question at a time to avoid overwhelming the patient",
		"- For ingrown toenails: Ask about pain level, swelling, redness, discharge, which toe, how long",
		"- For plantar fasciitis: Ask about heel pain, morning stiffness, activity levels",
		"- For athlete's foot: Ask about itching, peeling, location, moisture",
		"- Always recommend seeing a professional for severe symptoms",
		"- Be clear that this is preliminary guidance, not a replacement for professional care",
		"- When booking appointments, offer available time slots",
		"- After providing diagnosis and recommendations, ask if they'd like to book an appointment",
		"- At the end, ask for satisfaction rating (1-5) and feedback",
	}, "\n")
}
