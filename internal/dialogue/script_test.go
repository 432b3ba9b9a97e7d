package dialogue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"footcare-triage/internal/domain"
)

// history builds an alternating transcript whose final entry is last.
func history(count int, last string) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, count)
	for i := 0; i < count-1; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		out = append(out, domain.ChatMessage{Role: role, Content: "filler"})
	}
	if count > 0 {
		out = append(out, domain.ChatMessage{Role: domain.RoleUser, Content: last})
	}
	return out
}

func TestStageFor(t *testing.T) {
	cases := map[int]Stage{
		-1: StageFallback,
		0:  StageFallback,
		1:  StageGreeting,
		4:  StageCategoryMenu,
		7:  StageDiagnosis,
		11: StageRatingAck,
		12: StageClosing,
		40: StageClosing,
	}
	for count, want := range cases {
		require.Equal(t, want, StageFor(count), "count %d", count)
	}
}

func TestStage_String(t *testing.T) {
	require.Equal(t, "greeting", StageGreeting.String())
	require.Equal(t, "booking_confirm", StageBookingConfirm.String())
	require.Equal(t, "unknown", Stage(99).String())
}

func TestRespond_Greeting(t *testing.T) {
	reply := Respond(history(1, "hi"))
	require.True(t, strings.HasPrefix(reply, "Hello! I'm your AI Foot Health Assistant"))
	require.True(t, strings.HasSuffix(reply, "may I have your full name?"))
}

func TestRespond_EmptyHistoryFallsBack(t *testing.T) {
	require.Equal(t, FallbackReply, Respond(nil))
}

func TestRespond_CategoryFollowUp(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"toenail", "My toenail hurts", replyIngrownQuestions},
		{"nail beats heel", "nail and heel both", replyIngrownQuestions},
		{"heel", "pain on the bottom of my foot", replyHeelQuestions},
		{"fungal", "it really itches", replyFungalQuestions},
		{"generic", "my ankle is sore", replyDetailRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Respond(history(5, tc.text)))
		})
	}
}

func TestRespond_DiagnosisUsesWholeTranscript(t *testing.T) {
	h := history(7, "it hurts when I walk")
	h[4].Content = "My heel is killing me"
	reply := Respond(h)
	require.True(t, strings.HasPrefix(reply, diagnosisHeel))
	require.Contains(t, reply, "**Initial Care Recommendations:**")

	h[2].Content = "I think it's INGROWN"
	require.True(t, strings.HasPrefix(Respond(h), diagnosisIngrown))

	require.True(t, strings.HasPrefix(Respond(history(7, "it burns")), diagnosisFungal))
}

func TestRespond_Booking(t *testing.T) {
	require.Equal(t, replySlots, Respond(history(8, "Yes please")))
	require.Equal(t, FallbackReply, Respond(history(8, "not now")))

	require.Equal(t, replyBooked, Respond(history(9, "Friday 9am works")))
	require.Equal(t, FallbackReply, Respond(history(9, "none of those")))
}

func TestRespond_FollowUpAndClosing(t *testing.T) {
	require.Equal(t, replyFollowUpSet, Respond(history(10, "sure")))
	require.Equal(t, replyFollowUpSkip, Respond(history(10, "no thanks")))
	require.Contains(t, replyFollowUpSkip, "On a scale of 1-5 stars")
	require.Equal(t, replyRatingAck, Respond(history(11, "5")))
	require.Equal(t, replyClosing, Respond(history(12, "great service")))
	require.Equal(t, replyClosing, Respond(history(20, "bye")))
}

func TestStep_ReportsNextStage(t *testing.T) {
	next, reply := Step(StageGreeting, "hi", nil)
	require.Equal(t, StageAskEmail, next)
	require.Equal(t, replyGreeting, reply)

	next, _ = Step(StageBookingOffer, "no", nil)
	require.Equal(t, StageBookingConfirm, next)

	next, _ = Step(StageClosing, "bye", nil)
	require.Equal(t, StageClosing, next)

	next, reply = Step(StageFallback, "", nil)
	require.Equal(t, StageGreeting, next)
	require.Equal(t, FallbackReply, reply)
}
