// Package notify delivers candidate status e-mails and host summaries.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// Notifier sends status-change notices to candidates. A returned error means
// the notice was not delivered; callers record that and move on.
type Notifier interface {
	SendShortlist(ctx context.Context, app models.Application, job models.Job) error
	SendRejection(ctx context.Context, app models.Application, job models.Job) error
	SendOffer(ctx context.Context, app models.Application, job models.Job, offer models.OfferDetails) error
}

// Reporter tells the host how a shortlisting run went
type Reporter interface {
	ReportShortlist(ctx context.Context, job models.Job, outcome models.ShortlistOutcome) error
}

// Message is a rendered e-mail
type Message struct {
	To      string
	Subject string
	Body    string
}

// ShortlistMessage renders the notice for a shortlisted candidate
func ShortlistMessage(app models.Application, job models.Job) Message {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dear %s,\n\n", displayName(app)))
	sb.WriteString(fmt.Sprintf("Good news: you have been shortlisted for the %s position", job.Title))
	if app.Ranking > 0 {
		sb.WriteString(fmt.Sprintf(" (rank %d of %d shortlisted)", app.Ranking, job.MaxCandidatesShortlist))
	}
	sb.WriteString(".\n\n")
	sb.WriteString("The next step is a short AI voice interview. You will receive the call details separately.\n\n")
	sb.WriteString("Best regards,\nThe Hiring Team\n")

	return Message{
		To:      app.CandidateEmail,
		Subject: fmt.Sprintf("You've been shortlisted: %s", job.Title),
		Body:    sb.String(),
	}
}

// RejectionMessage renders the notice for a candidate who was not advanced
func RejectionMessage(app models.Application, job models.Job) Message {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dear %s,\n\n", displayName(app)))
	sb.WriteString(fmt.Sprintf("Thank you for your interest in the %s position. ", job.Title))
	sb.WriteString("After careful review we will not be moving forward with your application.\n\n")
	sb.WriteString("We wish you the best in your search.\n\nBest regards,\nThe Hiring Team\n")

	return Message{
		To:      app.CandidateEmail,
		Subject: fmt.Sprintf("Update on your application: %s", job.Title),
		Body:    sb.String(),
	}
}

// OfferMessage renders the offer letter for a selected candidate
func OfferMessage(app models.Application, job models.Job, offer models.OfferDetails) Message {
	position := offer.Position
	if position == "" {
		position = job.Title
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dear %s,\n\n", displayName(app)))
	sb.WriteString(fmt.Sprintf("We are delighted to offer you the %s position.\n\n", position))
	if offer.Salary != "" {
		sb.WriteString(fmt.Sprintf("Salary: %s\n", offer.Salary))
	}
	if offer.StartDate != "" {
		sb.WriteString(fmt.Sprintf("Start date: %s\n", offer.StartDate))
	}
	if offer.Message != "" {
		sb.WriteString("\n")
		sb.WriteString(offer.Message)
		sb.WriteString("\n")
	}
	sb.WriteString("\nBest regards,\nThe Hiring Team\n")

	return Message{
		To:      app.CandidateEmail,
		Subject: fmt.Sprintf("Job offer: %s", position),
		Body:    sb.String(),
	}
}

func displayName(app models.Application) string {
	if app.CandidateName != "" {
		return app.CandidateName
	}
	return "Candidate"
}

// LogNotifier writes notices to the log instead of sending them
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier for local runs without mail credentials
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendShortlist(_ context.Context, app models.Application, job models.Job) error {
	return n.log("shortlist", ShortlistMessage(app, job), app)
}

func (n *LogNotifier) SendRejection(_ context.Context, app models.Application, job models.Job) error {
	return n.log("rejection", RejectionMessage(app, job), app)
}

func (n *LogNotifier) SendOffer(_ context.Context, app models.Application, job models.Job, offer models.OfferDetails) error {
	return n.log("offer", OfferMessage(app, job, offer), app)
}

func (n *LogNotifier) log(kind string, msg Message, app models.Application) error {
	if msg.To == "" {
		return fmt.Errorf("application %s has no candidate email", app.ID)
	}
	n.logger.Info("notification",
		slog.String("kind", kind),
		slog.String("application_id", app.ID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject))
	return nil
}

// LogReporter writes shortlist summaries to the log
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter for local runs without a Telegram bot
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportShortlist(_ context.Context, job models.Job, outcome models.ShortlistOutcome) error {
	r.logger.Info("shortlist report",
		slog.String("job_id", job.ID),
		slog.String("title", job.Title),
		slog.String("summary", outcome.Summary()))
	return nil
}
