// Package dialogue implements the scripted conversation used when no language
// model credential is configured.
package dialogue

// Stage is a position in the scripted conversation.
type Stage int

const (
	StageFallback Stage = iota
	StageGreeting
	StageAskEmail
	StageAskPhone
	StageCategoryMenu
	StageCategoryFollowUp
	StageSymptomDetail
	StageDiagnosis
	StageBookingOffer
	StageBookingConfirm
	StageFollowUp
	StageRatingAck
	StageClosing
)

var stageNames = map[Stage]string{
	StageFallback:         "fallback",
	StageGreeting:         "greeting",
	StageAskEmail:         "ask_email",
	StageAskPhone:         "ask_phone",
	StageCategoryMenu:     "category_menu",
	StageCategoryFollowUp: "category_follow_up",
	StageSymptomDetail:    "symptom_detail",
	StageDiagnosis:        "diagnosis",
	StageBookingOffer:     "booking_offer",
	StageBookingConfirm:   "booking_confirm",
	StageFollowUp:         "follow_up",
	StageRatingAck:        "rating_ack",
	StageClosing:          "closing",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// StageFor maps the number of messages in a history to its stage.
func StageFor(count int) Stage {
	switch {
	case count >= int(StageClosing):
		return StageClosing
	case count < int(StageGreeting):
		return StageFallback
	default:
		return Stage(count)
	}
}

// successor is the stage reached once one more message is appended.
func (s Stage) successor() Stage {
	switch s {
	case StageFallback:
		return StageGreeting
	case StageClosing:
		return StageClosing
	default:
		return s + 1
	}
}
