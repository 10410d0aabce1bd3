package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// TelegramReporter posts shortlist summaries to the host's chat
type TelegramReporter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramReporter creates a reporter for the given bot token and chat
func NewTelegramReporter(token string, chatID int64) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramReporter{bot: bot, chatID: chatID}, nil
}

// NewTelegramReporterWithEndpoint is NewTelegramReporter against a custom Bot API endpoint
func NewTelegramReporterWithEndpoint(token, endpoint string, client *http.Client, chatID int64) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramReporter{bot: bot, chatID: chatID}, nil
}

// ReportShortlist sends the outcome of one shortlisting run
func (t *TelegramReporter) ReportShortlist(_ context.Context, job models.Job, outcome models.ShortlistOutcome) error {
	return t.SendMessage(formatShortlistReport(job, outcome))
}

// SendMessage sends an HTML-formatted message to the configured chat
func (t *TelegramReporter) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatShortlistReport(job models.Job, outcome models.ShortlistOutcome) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", html.EscapeString(job.Title)))
	sb.WriteString(fmt.Sprintf("✅ %s\n", html.EscapeString(outcome.Summary())))
	sb.WriteString(fmt.Sprintf("📨 %d notifications sent\n", outcome.NotificationsSent))
	sb.WriteString(fmt.Sprintf("🚫 %d candidates not advanced\n", len(outcome.Rejected)))
	sb.WriteString(fmt.Sprintf("🆔 <code>%s</code>", html.EscapeString(job.ID)))
	return sb.String()
}
