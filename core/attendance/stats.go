package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/beshoyehab/schoolbot/core/schoolday"
)

type (
	// DayStats summarizes one class day.
	DayStats struct {
		Date    time.Time `json:"date"`
		Total   int       `json:"total"`
		Present int       `json:"present"`
		Absent  int       `json:"absent"`
		Rate    float64   `json:"rate"`
	}

	// MemberStats summarizes one member over a date range.
	MemberStats struct {
		MemberID           int     `json:"member_id"`
		Total              int     `json:"total"`
		Present            int     `json:"present"`
		Absent             int     `json:"absent"`
		Rate               float64 `json:"rate"`
		ConsecutiveAbsents int     `json:"consecutive_absents"`
	}

	ReasonCount struct {
		Note  string `json:"note"`
		Count int    `json:"count"`
	}

	// ReasonBreakdown groups a range's absences by their notes.
	ReasonBreakdown struct {
		TotalAbsent     int           `json:"total_absent"`
		TotalWithReason int           `json:"total_with_reason"`
		Reasons         []ReasonCount `json:"reasons"`
	}
)

// Rate is the present share of total, 0 when nothing was marked.
func Rate(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total)
}

func (svc *Service) DayStats(ctx context.Context, classID int, date time.Time) (DayStats, error) {
	recs, err := svc.RosterAttendance(ctx, classID, date)
	if err != nil {
		return DayStats{}, err
	}
	stats := DayStats{Date: schoolday.Normalize(date), Total: len(recs)}
	for _, rec := range recs {
		if rec.Present {
			stats.Present++
		} else {
			stats.Absent++
		}
	}
	stats.Rate = Rate(stats.Present, stats.Total)
	return stats, nil
}

func (svc *Service) MemberStats(ctx context.Context, memberID int, classID *int, from, to time.Time) (MemberStats, error) {
	recs, err := svc.repo.FilterRecords(ctx,
		&QueryFilter{MemberID: memberID, ClassID: classID, DateFrom: schoolday.Normalize(from), DateTo: schoolday.Normalize(to)},
		nil,
	)
	if err != nil {
		return MemberStats{}, err
	}
	stats := MemberStats{MemberID: memberID, Total: len(recs)}
	for _, rec := range recs {
		if rec.Present {
			stats.Present++
		} else {
			stats.Absent++
		}
	}
	stats.Rate = Rate(stats.Present, stats.Total)
	if stats.ConsecutiveAbsents, err = svc.ConsecutiveAbsences(ctx, memberID, classID); err != nil {
		return MemberStats{}, err
	}
	return stats, nil
}

// AbsenceReasons groups absences in [from, to] by note, most frequent first.
// Absences without a note count toward TotalAbsent only.
func (svc *Service) AbsenceReasons(ctx context.Context, classID int, from, to time.Time) (ReasonBreakdown, error) {
	absent := false
	filter := QueryFilter{
		ClassID:  &classID,
		DateFrom: schoolday.Normalize(from),
		DateTo:   schoolday.Normalize(to),
		Present:  &absent,
	}
	total, err := svc.Count(ctx, &filter)
	if err != nil {
		return ReasonBreakdown{}, err
	}

	withNote := true
	noted := filter
	noted.WithNote = &withNote
	recs, err := svc.repo.FilterRecords(ctx, &noted, nil)
	if err != nil {
		return ReasonBreakdown{}, err
	}

	counts := make(map[string]int)
	breakdown := ReasonBreakdown{TotalAbsent: total, TotalWithReason: len(recs)}
	for _, rec := range recs {
		counts[rec.Note]++
	}
	for note, count := range counts {
		breakdown.Reasons = append(breakdown.Reasons, ReasonCount{Note: note, Count: count})
	}
	sort.Slice(breakdown.Reasons, func(i, j int) bool {
		if breakdown.Reasons[i].Count != breakdown.Reasons[j].Count {
			return breakdown.Reasons[i].Count > breakdown.Reasons[j].Count
		}
		return breakdown.Reasons[i].Note < breakdown.Reasons[j].Note
	})
	return breakdown, nil
}
