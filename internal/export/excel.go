package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/selection"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Ranked Candidates"
	feedbackSheet   = "Feedback"
)

// ExportShortlist writes the host report for a job to outputPath
func ExportShortlist(job models.Job, apps []models.Application, outputPath string) error {
	// Ensure output path has .xlsx extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	var buf bytes.Buffer
	if err := WriteShortlist(&buf, job, apps); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

// WriteShortlist renders the host report workbook to w
func WriteShortlist(w io.Writer, job models.Job, apps []models.Application) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{candidatesSheet, feedbackSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create %s sheet: %w", name, err)
		}
	}

	ranked := selection.Rank(apps)

	if err := createSummarySheet(f, job, ranked); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createRankedCandidatesSheet(f, ranked); err != nil {
		return fmt.Errorf("failed to create ranked candidates sheet: %w", err)
	}
	if err := createFeedbackSheet(f, ranked); err != nil {
		return fmt.Errorf("failed to create feedback sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

// createSummarySheet lists the job settings and how candidates are spread across statuses
func createSummarySheet(f *excelize.File, job models.Job, apps []models.Application) error {
	f.SetColWidth(summarySheet, "A", "A", 28)
	f.SetColWidth(summarySheet, "B", "B", 50)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	section := func(title string) {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), title)
		f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
		f.MergeCell(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
		row++
	}
	line := func(label string, value any) {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), label)
		f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), value)
		row++
	}

	section("Shortlist Report")
	row++
	line("Job Title:", job.Title)
	line("Job ID:", job.ID)
	line("Status:", string(job.Status))
	line("Generated:", time.Now().Format("2006-01-02 15:04:05"))
	row++

	section("Capacity")
	line("Target Applications:", job.TargetApplications)
	line("Applications Received:", job.CurrentApplications)
	line("Shortlist Size:", job.MaxCandidatesShortlist)
	line("Final Selection:", job.FinalSelectionCount)
	row++

	section("Candidates by Status")
	counts := make(map[models.ApplicationStatus]int)
	for _, app := range apps {
		counts[app.Status]++
	}
	for _, status := range []models.ApplicationStatus{
		models.StatusApplied, models.StatusShortlisted, models.StatusInterviewScheduled,
		models.StatusInterviewCompleted, models.StatusSelected, models.StatusRejected, models.StatusOfferSent,
	} {
		line(string(status)+":", counts[status])
	}

	if len(apps) > 0 {
		row++
		section("Scores")
		total, highest, lowest := 0, apps[0].FinalScore, apps[0].FinalScore
		for _, app := range apps {
			total += app.FinalScore
			highest = max(highest, app.FinalScore)
			lowest = min(lowest, app.FinalScore)
		}
		line("Average Final Score:", fmt.Sprintf("%.2f", float64(total)/float64(len(apps))))
		line("Highest Final Score:", highest)
		line("Lowest Final Score:", lowest)
	}
	return nil
}

// createRankedCandidatesSheet lists every candidate in ranking order, colour-coded by final score
func createRankedCandidatesSheet(f *excelize.File, apps []models.Application) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}

	bands := []struct {
		min   int
		color string
	}{
		{90, "C6EFCE"},
		{70, "FFEB9C"},
		{50, "FFC7CE"},
		{0, "FF9999"},
	}
	bandStyles := make([]int, len(bands))
	for i, band := range bands {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{band.color}, Pattern: 1},
		})
		if err != nil {
			return err
		}
		bandStyles[i] = style
	}

	headers := []string{"Rank", "Candidate", "Email", "Status", "Final Score", "ATS Score", "Interview Score", "Notified"}
	widths := []float64{8, 28, 32, 20, 12, 12, 16, 14}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		colName, _ := excelize.ColumnNumberToName(col + 1)
		f.SetCellValue(candidatesSheet, cell, header)
		f.SetCellStyle(candidatesSheet, cell, cell, headerStyle)
		f.SetColWidth(candidatesSheet, colName, colName, widths[col])
	}

	for i, app := range apps {
		row := i + 2
		values := []any{
			rankLabel(app),
			app.CandidateName,
			app.CandidateEmail,
			string(app.Status),
			app.FinalScore,
			app.ATSScore,
			interviewLabel(app),
			notifiedLabel(app),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(candidatesSheet, cell, v)
		}

		for b, band := range bands {
			if app.FinalScore >= band.min {
				f.SetCellStyle(candidatesSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("E%d", row), bandStyles[b])
				break
			}
		}
	}

	if len(apps) > 0 {
		f.SetPanes(candidatesSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// createFeedbackSheet carries the scorers' written feedback for each candidate
func createFeedbackSheet(f *excelize.File, apps []models.Application) error {
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return err
	}

	headers := []string{"Candidate", "Skills Match", "Experience Match", "Strengths", "Weaknesses", "Resume Summary", "Interview Summary"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(feedbackSheet, cell, header)
	}
	f.SetColWidth(feedbackSheet, "A", "A", 28)
	f.SetColWidth(feedbackSheet, "D", "G", 45)

	for i, app := range apps {
		row := i + 2
		fb := app.ResumeFeedback
		values := []any{
			app.CandidateName,
			fb.SkillsMatch,
			fb.ExperienceMatch,
			strings.Join(fb.Strengths, "\n"),
			strings.Join(fb.Weaknesses, "\n"),
			fb.Summary,
			app.InterviewFeedback.Summary,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(feedbackSheet, cell, v)
		}
		f.SetCellStyle(feedbackSheet, fmt.Sprintf("D%d", row), fmt.Sprintf("G%d", row), wrapStyle)
	}
	return nil
}

func rankLabel(app models.Application) any {
	if app.Ranking == 0 {
		return "-"
	}
	return app.Ranking
}

func interviewLabel(app models.Application) any {
	if app.VoiceInterviewScore == nil {
		return "pending"
	}
	return *app.VoiceInterviewScore
}

func notifiedLabel(app models.Application) string {
	var sent []string
	if app.ShortlistEmailSent {
		sent = append(sent, "shortlist")
	}
	if app.RejectionEmailSent {
		sent = append(sent, "rejection")
	}
	if app.OfferEmailSent {
		sent = append(sent, "offer")
	}
	if len(sent) == 0 {
		return "-"
	}
	return strings.Join(sent, ", ")
}
