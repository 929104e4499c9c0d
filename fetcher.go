package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"
)

// EmailFetcher lists recently sent messages and fetches their content
type EmailFetcher interface {
	// ListRecent returns the ids of the most recent outbound messages,
	// bounded by the provider page size.
	ListRecent(ctx context.Context) ([]string, error)
	// Fetch retrieves the subject, raw recipient header and plaintext body
	// of one message.
	Fetch(ctx context.Context, id string) (EmailMessage, error)
	Close() error
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// GmailFetcher implements EmailFetcher using the Gmail API
type GmailFetcher struct {
	service    *gmail.Service
	userEmail  string
	maxResults int64
}

// NewGmailFetcher creates a Gmail API fetcher from OAuth2 credentials
func NewGmailFetcher(config *GmailConfig, creds Credentials) (*GmailFetcher, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: creds.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	return &GmailFetcher{
		service:    service,
		userEmail:  config.UserEmail,
		maxResults: maxResults,
	}, nil
}

// ListRecent lists the ids of the most recently sent messages
func (f *GmailFetcher) ListRecent(ctx context.Context) ([]string, error) {
	response, err := f.service.Users.Messages.List(f.userEmail).
		Q("in:sent").
		MaxResults(f.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}

	ids := make([]string, 0, len(response.Messages))
	for _, msg := range response.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// Fetch retrieves one message in full and extracts subject, recipients and body
func (f *GmailFetcher) Fetch(ctx context.Context, id string) (EmailMessage, error) {
	msg, err := f.service.Users.Messages.Get(f.userEmail, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return EmailMessage{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	email := EmailMessage{ID: msg.Id}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "To":
			email.To = header.Value
		}
	}

	email.Body = extractBody(msg.Payload)
	return email, nil
}

// Close closes the Gmail fetcher (no-op for the Gmail API)
func (f *GmailFetcher) Close() error {
	return nil
}

// extractBody pulls a plaintext body out of a Gmail message payload,
// preferring a text/plain part, then stripped text/html, then the single-part
// body
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if len(payload.Parts) > 0 {
		if text := findPart(payload.Parts, "text/plain"); text != "" {
			return text
		}
		if html := findPart(payload.Parts, "text/html"); html != "" {
			return htmlTagPattern.ReplaceAllString(html, "")
		}
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBodyData(payload.Body.Data)
	}
	return ""
}

// findPart searches message parts depth-first for the given MIME type
func findPart(parts []*gmail.MessagePart, mimeType string) string {
	for _, part := range parts {
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return decodeBodyData(part.Body.Data)
		}
		if len(part.Parts) > 0 {
			if content := findPart(part.Parts, mimeType); content != "" {
				return content
			}
		}
	}
	return ""
}

// decodeBodyData decodes Gmail's base64url body encoding
func decodeBodyData(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Some providers pad, some don't
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			logrus.Warnf("Failed to decode message body data: %v", err)
			return ""
		}
	}
	return string(decoded)
}

// IMAPFetcher implements EmailFetcher against the Sent mailbox of an IMAP
// server. Message ids are the mailbox UIDs prefixed with "uid:".
type IMAPFetcher struct {
	client    *client.Client
	mailbox   string
	lastCheck time.Time
}

// NewIMAPFetcher connects and logs in to an IMAP server
func NewIMAPFetcher(config *GmailConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", config.IMAPHost, config.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(config.IMAPUser, config.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:    c,
		mailbox:   config.IMAPMailbox,
		lastCheck: time.Now().Add(-24 * time.Hour),
	}, nil
}

// ListRecent searches the Sent mailbox for messages since the last check
func (f *IMAPFetcher) ListRecent(ctx context.Context) ([]string, error) {
	if _, err := f.client.Select(f.mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", f.mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck

	uids, err := f.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	f.lastCheck = time.Now()

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, fmt.Sprintf("uid:%d", uid))
	}
	return ids, nil
}

// Fetch retrieves one message by UID
func (f *IMAPFetcher) Fetch(ctx context.Context, id string) (EmailMessage, error) {
	uid, err := strconv.ParseUint(strings.TrimPrefix(id, "uid:"), 10, 32)
	if err != nil {
		return EmailMessage{}, fmt.Errorf("invalid IMAP message id %q: %w", id, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.client.UidFetch(seqset, items, messages)
	}()

	var email EmailMessage
	for msg := range messages {
		email = f.parseMessage(id, msg, section)
	}

	if err := <-done; err != nil {
		return EmailMessage{}, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if email.ID == "" {
		return EmailMessage{}, fmt.Errorf("message %s not found", id)
	}
	return email, nil
}

// parseMessage extracts subject, recipient header and body from a fetched
// IMAP message
func (f *IMAPFetcher) parseMessage(id string, msg *imap.Message, section *imap.BodySectionName) EmailMessage {
	email := EmailMessage{ID: id}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		var recipients []string
		for _, addr := range msg.Envelope.To {
			recipients = append(recipients, addr.Address())
		}
		email.To = strings.Join(recipients, ", ")
	}

	r := msg.GetBody(section)
	if r == nil {
		return email
	}

	entity, err := message.Read(r)
	if err != nil {
		logrus.Warnf("Failed to read IMAP message %s: %v", id, err)
		return email
	}

	body, htmlBody := readEntityBody(entity)
	if body != "" {
		email.Body = body
	} else if htmlBody != "" {
		email.Body = htmlTagPattern.ReplaceAllString(htmlBody, "")
	}
	return email
}

// readEntityBody walks a MIME entity and returns its text and HTML contents
func readEntityBody(entity *message.Entity) (body, htmlBody string) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				logrus.Warnf("Failed to read message part: %v", err)
				break
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") && body == "" {
				body = string(content)
			} else if strings.Contains(contentType, "text/html") && htmlBody == "" {
				htmlBody = string(content)
			}
		}
		return body, htmlBody
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", ""
	}

	contentType := entity.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		return "", string(content)
	}
	return string(content), ""
}

// Close logs out of the IMAP server
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
