// Package analytics aggregates store snapshots into the dashboard summary.
package analytics

import (
	"math"

	"footcare-triage/internal/domain"
)

// Analytics is the dashboard summary.
type Analytics struct {
	TotalPatients     int            `json:"totalPatients"`
	TotalSessions     int            `json:"totalSessions"`
	ActiveSessions    int            `json:"activeSessions"`
	CompletedSessions int            `json:"completedSessions"`
	AvgSatisfaction   float64        `json:"avgSatisfaction"`
	IssueCategories   map[string]int `json:"issueCategories"`
}

// Compute summarises the given records. Only completed sessions with a score
// contribute to AvgSatisfaction, which is rounded to one decimal and is 0 when
// no such session exists.
func Compute(patients []domain.Patient, sessions []domain.Session) Analytics {
	a := Analytics{
		TotalPatients:   len(patients),
		TotalSessions:   len(sessions),
		IssueCategories: make(map[string]int),
	}

	var sum, rated int
	for _, s := range sessions {
		a.IssueCategories[s.IssueCategory]++
		switch s.Status {
		case domain.StatusActive:
			a.ActiveSessions++
		case domain.StatusCompleted:
			a.CompletedSessions++
			if s.SatisfactionScore != nil {
				sum += *s.SatisfactionScore
				rated++
			}
		}
	}
	if rated > 0 {
		a.AvgSatisfaction = math.Round(float64(sum)/float64(rated)*10) / 10
	}
	return a
}
