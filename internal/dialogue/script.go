package dialogue

import (
	"strings"

	"footcare-triage/internal/domain"
)

const (
	replyGreeting = "Hello! I'm your AI Foot Health Assistant at FootCare Clinic. I'm here to help assess your foot concerns and guide you through our services.\n\nTo get started, may I have your full name?"
	replyAskEmail = "Thank you! Now, could you please provide your email address so we can send you appointment details and follow-up information?"
	replyAskPhone = "Great! And what's the best phone number to reach you at?"
	replyMenu     = "Perfect! Now, let's discuss your foot concern. What type of issue are you experiencing?\n\n1. Ingrown toenail\n2. Heel pain\n3. Athlete's foot or fungal infection\n4. Bunions\n5. Plantar fasciitis\n6. General toe pain\n7. Other\n\nPlease describe your main concern."

	replyIngrownQuestions = "I understand you're dealing with what sounds like an ingrown toenail. Let me ask you a few questions to better understand your situation.\n\nOn a scale of 1-10, how would you rate your pain level? And which toe is affected?"
	replyHeelQuestions    = "I see you're experiencing heel pain. This is quite common. Let me gather some details.\n\nDoes the pain feel worse in the morning when you first stand up? And how long have you been experiencing this?"
	replyFungalQuestions  = "It sounds like you might be dealing with a fungal infection like athlete's foot. Let me learn more.\n\nAre you experiencing itching, peeling skin, or redness? Where exactly on your foot is it located?"
	replyDetailRequest    = "Thank you for sharing that. To help you better, could you describe your symptoms in more detail? For example, when did it start, what does it feel like, and what activities make it worse or better?"

	replySymptomDetail = "Thank you for that information. Have you noticed any swelling, redness, or warmth in the affected area? Also, has this issue been affecting your daily activities or sleep?"

	diagnosisIngrown = "Based on your symptoms, this appears to be an ingrown toenail. This occurs when the nail edge grows into the surrounding skin, causing pain, swelling, and sometimes infection."
	diagnosisHeel    = "Based on your symptoms, this sounds like it could be plantar fasciitis - inflammation of the tissue connecting your heel to your toes. The morning pain is a classic sign."
	diagnosisFungal  = "Based on your symptoms, this appears to be a fungal infection (athlete's foot). This is caused by fungi that thrive in warm, moist environments."
	careAdvice       = "\n\n**Initial Care Recommendations:**\n• Keep the area clean and dry\n• Avoid tight footwear\n• Soak in warm water with Epsom salt (15 minutes daily)\n• Apply antibiotic ointment if there's any redness\n• Elevate your foot when resting\n\n**Important:** While these can help with mild cases, I strongly recommend seeing our foot health specialist for proper treatment, especially if symptoms worsen.\n\nWould you like to schedule an appointment with one of our podiatrists?"

	replySlots        = "Excellent! I can help you book an appointment. We have availability:\n\n• Tomorrow at 2:00 PM\n• Wednesday at 10:00 AM\n• Thursday at 3:30 PM\n• Friday at 9:00 AM\n\nWhich time works best for you?"
	replyBooked       = "Perfect! I've scheduled your appointment. You'll receive a confirmation email shortly with all the details.\n\nWould you like to schedule a follow-up appointment in 2 weeks to check on your progress? Follow-ups are important for monitoring your recovery."
	ratingQuestion    = "\n\nBefore we finish, I'd love to get your feedback. On a scale of 1-5 stars, how would you rate your experience with our AI triage system today?"
	replyFollowUpSet  = "Great! I've noted a follow-up appointment for 2 weeks from your initial visit. We'll send you a reminder." + ratingQuestion
	replyFollowUpSkip = "No problem! You can always schedule a follow-up later if needed." + ratingQuestion
	replyRatingAck    = "Thank you for your rating! Is there anything specific you'd like to share about your experience - what went well or what we could improve?"
	replyClosing      = "Thank you so much for your feedback! It helps us improve our service.\n\nYour session has been saved to your patient portal where you can:\n• View your diagnosis and recommendations\n• Access your appointment details\n• Message our team\n• Track your treatment progress\n\nTake care, and we look forward to seeing you at your appointment! Feel better soon! 🦶"

	// FallbackReply is sent when no stage rule produces a reply.
	FallbackReply = "I'm here to help! Could you tell me more about your concern?"
)

type keywordRule struct {
	keywords []string
	reply    string
}

// categoryRules are checked in order; the first match wins.
var categoryRules = []keywordRule{
	{keywords: []string{"ingrown", "toenail", "nail"}, reply: replyIngrownQuestions},
	{keywords: []string{"heel", "bottom"}, reply: replyHeelQuestions},
	{keywords: []string{"itch", "athlete", "fungus"}, reply: replyFungalQuestions},
}

var (
	bookingKeywords  = []string{"yes", "book", "appointment", "schedule"}
	slotKeywords     = []string{"tomorrow", "wednesday", "thursday", "friday", "am", "pm"}
	agreeingKeywords = []string{"yes", "sure", "okay"}
)

// Respond returns the scripted reply for the conversation so far.
func Respond(history []domain.ChatMessage) string {
	var last string
	if len(history) > 0 {
		last = history[len(history)-1].Content
	}
	_, reply := Step(StageFor(len(history)), last, history)
	return reply
}

// Step produces the reply for stage given the latest utterance and the full
// transcript, and reports the stage reached once that reply is appended.
// Keyword checks are case-insensitive substring matches.
func Step(stage Stage, utterance string, transcript []domain.ChatMessage) (Stage, string) {
	text := strings.ToLower(utterance)
	next := stage.successor()

	switch stage {
	case StageGreeting:
		return next, replyGreeting
	case StageAskEmail:
		return next, replyAskEmail
	case StageAskPhone:
		return next, replyAskPhone
	case StageCategoryMenu:
		return next, replyMenu
	case StageCategoryFollowUp:
		for _, r := range categoryRules {
			if containsAny(text, r.keywords) {
				return next, r.reply
			}
		}
		return next, replyDetailRequest
	case StageSymptomDetail:
		return next, replySymptomDetail
	case StageDiagnosis:
		return next, diagnosisFor(text, transcript) + careAdvice
	case StageBookingOffer:
		if containsAny(text, bookingKeywords) {
			return next, replySlots
		}
	case StageBookingConfirm:
		if containsAny(text, slotKeywords) {
			return next, replyBooked
		}
	case StageFollowUp:
		if containsAny(text, agreeingKeywords) {
			return next, replyFollowUpSet
		}
		return next, replyFollowUpSkip
	case StageRatingAck:
		return next, replyRatingAck
	case StageClosing:
		return next, replyClosing
	}
	return next, FallbackReply
}

func diagnosisFor(text string, transcript []domain.ChatMessage) string {
	switch {
	case strings.Contains(text, "ingrown") || mentions(transcript, "ingrown"):
		return diagnosisIngrown
	case strings.Contains(text, "heel") || mentions(transcript, "heel"):
		return diagnosisHeel
	default:
		return diagnosisFungal
	}
}

func mentions(transcript []domain.ChatMessage, keyword string) bool {
	for _, m := range transcript {
		if strings.Contains(strings.ToLower(m.Content), keyword) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
