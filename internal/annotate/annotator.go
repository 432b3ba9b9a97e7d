// Package annotate derives session updates from what the patient types.
package annotate

import (
	"fmt"
	"strings"
	"time"

	"github.com/coregx/ahocorasick"

	"footcare-triage/internal/domain"
)

const (
	categoryPromptUserCount = 4
	feedbackUserCount       = 11
	followUpMessageCount    = 18
	followUpDelay           = 14 * 24 * time.Hour
)

type categoryRule struct {
	keywords []string
	category string
}

// categoryRules are checked in order; the first match wins.
var categoryRules = []categoryRule{
	{keywords: []string{"ingrown", "toenail"}, category: "Ingrown Toenail"},
	{keywords: []string{"heel", "plantar"}, category: "Heel Pain / Plantar Fasciitis"},
	{keywords: []string{"athlete", "fungus", "itch"}, category: "Athlete's Foot / Fungal Infection"},
	{keywords: []string{"bunion"}, category: "Bunions"},
}

// GeneralCategory is assigned when no category keyword matches.
const GeneralCategory = "General Foot Issue"

var categories = mustRuleMatcher(categoryRules)

// ruleMatcher scans a text once for the keywords of every rule.
type ruleMatcher struct {
	ac     *ahocorasick.Automaton
	ruleOf []int // pattern index -> rule index
}

func mustRuleMatcher(rules []categoryRule) *ruleMatcher {
	var patterns []string
	var ruleOf []int
	for i, r := range rules {
		for _, k := range r.keywords {
			patterns = append(patterns, k)
			ruleOf = append(ruleOf, i)
		}
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		panic(fmt.Sprintf("annotate: compile keyword rules: %v", err))
	}
	return &ruleMatcher{ac: ac, ruleOf: ruleOf}
}

// first returns the lowest-numbered rule mentioned in text, or -1.
func (m *ruleMatcher) first(text string) int {
	best := -1
	for _, hit := range m.ac.FindAllOverlapping([]byte(strings.ToLower(text))) {
		if r := m.ruleOf[hit.PatternID]; best == -1 || r < best {
			best = r
		}
	}
	return best
}

// Category classifies a complaint.
func Category(text string) string {
	if i := categories.first(text); i >= 0 {
		return categoryRules[i].category
	}
	return GeneralCategory
}

// Annotate inspects the newest user message against the history that preceded
// it and returns the session updates it implies. The bool is false when no
// rule fired.
//
// Any digit 1-5 counts as a rating, so feedback that mentions such a digit is
// recorded as a score instead of feedback.
func Annotate(prior []domain.ChatMessage, text string, now time.Time) (domain.SessionPatch, bool) {
	var patch domain.SessionPatch
	lower := strings.ToLower(text)
	priorUsers := domain.CountRole(prior, domain.RoleUser)

	if priorUsers == categoryPromptUserCount {
		category := Category(text)
		symptoms := text
		patch.IssueCategory = &category
		patch.Symptoms = &symptoms
	}

	if appt, ok := AppointmentDate(text, now); ok {
		scheduled := domain.StatusScheduled
		patch.AppointmentDate = &appt
		patch.Status = &scheduled
	}

	if strings.Contains(lower, "yes") && len(prior) >= followUpMessageCount {
		followUp := now.Add(followUpDelay)
		patch.FollowUpDate = &followUp
	}

	score, rated := Rating(text)
	if rated {
		patch.SatisfactionScore = &score
	}

	if priorUsers >= feedbackUserCount && !rated {
		feedback := text
		completed := domain.StatusCompleted
		patch.SatisfactionFeedback = &feedback
		patch.Status = &completed
	}

	return patch, !patch.IsEmpty()
}

// AppointmentDate resolves "tomorrow" or a weekday name in text relative to
// now. A weekday equal to today's means the same day next week. The time of
// day is kept.
func AppointmentDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tomorrow") {
		return now.Add(24 * time.Hour), true
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !strings.Contains(lower, strings.ToLower(d.String())) {
			continue
		}
		delta := (int(d) - int(now.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return now.AddDate(0, 0, delta), true
	}
	return time.Time{}, false
}

// Rating returns the first digit 1-5 in text.
func Rating(text string) (int, bool) {
	for _, r := range text {
		if r >= '1' && r <= '5' {
			return int(r - '0'), true
		}
	}
	return 0, false
}

// ExtractContact reads name, email and phone from the first three user
// messages. It reports false until three user messages exist.
func ExtractContact(history []domain.ChatMessage) (domain.PatientInput, bool) {
	fields := make([]string, 0, 3)
	for _, m := range history {
		if m.Role != domain.RoleUser {
			continue
		}
		fields = append(fields, strings.TrimSpace(m.Content))
		if len(fields) == 3 {
			return domain.PatientInput{Name: fields[0], Email: fields[1], Phone: fields[2]}, true
		}
	}
	return domain.PatientInput{}, false
}
