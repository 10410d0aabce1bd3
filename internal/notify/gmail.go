package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// GmailNotifier sends candidate notices through the Gmail API
type GmailNotifier struct {
	service *gmail.Service
	sender  string
	logger  *slog.Logger
}

// NewGmailNotifier creates a Gmail notifier from an OAuth client credentials
// file and a previously authorized token file (see AuthorizeGmail)
func NewGmailNotifier(ctx context.Context, credentialsPath, tokenPath, sender string, logger *slog.Logger) (*GmailNotifier, error) {
	config, err := gmailConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read gmail token %s (run the gmail-auth command first): %w", tokenPath, err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}
	return NewGmailNotifierWithService(srv, sender, logger), nil
}

// NewGmailNotifierWithService wraps an existing Gmail service
func NewGmailNotifierWithService(srv *gmail.Service, sender string, logger *slog.Logger) *GmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailNotifier{service: srv, sender: sender, logger: logger}
}

func (g *GmailNotifier) SendShortlist(ctx context.Context, app models.Application, job models.Job) error {
	return g.send(ctx, ShortlistMessage(app, job))
}

func (g *GmailNotifier) SendRejection(ctx context.Context, app models.Application, job models.Job) error {
	return g.send(ctx, RejectionMessage(app, job))
}

func (g *GmailNotifier) SendOffer(ctx context.Context, app models.Application, job models.Job, offer models.OfferDetails) error {
	return g.send(ctx, OfferMessage(app, job, offer))
}

func (g *GmailNotifier) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message %q has no recipient", msg.Subject)
	}

	raw := base64.URLEncoding.EncodeToString(buildRFC822(g.sender, msg))
	sent, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to send message to %s: %w", msg.To, err)
	}

	g.logger.Debug("email sent", slog.String("to", msg.To), slog.String("message_id", sent.Id))
	return nil
}

// buildRFC822 renders msg as a plain-text MIME message
func buildRFC822(from string, msg Message) []byte {
	var sb strings.Builder
	if from != "" {
		sb.WriteString("From: " + from + "\r\n")
	}
	sb.WriteString("To: " + msg.To + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(sb.String())
}

// AuthorizeGmail runs the interactive OAuth flow and saves the token to tokenPath
func AuthorizeGmail(ctx context.Context, credentialsPath, tokenPath string, in io.Reader, out io.Writer) error {
	config, err := gmailConfig(credentialsPath)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}

	fmt.Fprintf(out, "Saving credential file to: %s\n", tokenPath)
	return saveToken(tokenPath, tok)
}

func gmailConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
