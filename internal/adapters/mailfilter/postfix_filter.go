package mailfilter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/utils"
)

// HeaderNames are the headers the filter injects into processed mail
type HeaderNames struct {
	Category   string
	Confidence string
	Reason     string
	Stage      string
}

// PostfixFilter implements a Postfix content filter: it accepts mail over
// SMTP, classifies it, stamps the verdict into headers and re-injects the
// message into Postfix.
type PostfixFilter struct {
	service       *core.ClassifierService
	logger        *zap.Logger
	text          *utils.TextProcessor
	listenAddr    string
	server        *smtp.Server
	blockSpam     bool
	headers       HeaderNames
	postfixAddr   string
	postfixPort   int
	subjectPrefix string
	modifySubject bool
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.ClassifierService,
	logger *zap.Logger,
	text *utils.TextProcessor,
	listenAddr string,
	blockSpam bool,
	headers HeaderNames,
	postfixAddr string,
	postfixPort int,
	subjectPrefix string,
	modifySubject bool,
) *PostfixFilter {
	if subjectPrefix == "" && modifySubject {
		subjectPrefix = "[**SPAM**] "
	}

	return &PostfixFilter{
		service:       service,
		logger:        logger,
		text:          text,
		listenAddr:    listenAddr,
		blockSpam:     blockSpam,
		headers:       headers,
		postfixAddr:   postfixAddr,
		postfixPort:   postfixPort,
		subjectPrefix: subjectPrefix,
		modifySubject: modifySubject,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies an email directly, bypassing the SMTP path.
// Mainly used for testing.
func (f *PostfixFilter) ProcessEmail(ctx context.Context, email *core.Email) (core.ClassificationResult, error) {
	return f.service.ClassifyEmail(ctx, email), nil
}

// sendToPostfix re-injects the processed email into Postfix
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := fmt.Sprintf("%s:%d", f.postfixAddr, f.postfixPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			// Continue with other recipients even if one fails
		} else {
			recipientOK = true
		}
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
		// The email has already been accepted at this point
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data classifies the message and forwards it with verdict headers
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		s.filter.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	email := &core.Email{
		Headers: make(map[string][]string),
		Body:    s.filter.text.SanitizeUTF8(textContent),
		From:    s.sender,
		To:      s.recipients,
	}

	for key, values := range msg.Header {
		email.Headers[key] = values

		if strings.EqualFold(key, "Subject") && len(values) > 0 {
			if decoded, err := decodeEncodedHeader(values[0]); err == nil {
				email.Subject = decoded
			} else {
				email.Subject = values[0]
			}
		}
	}

	senderDomain := "unknown"
	if parts := strings.Split(email.From, "@"); len(parts) == 2 {
		senderDomain = parts[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result := s.filter.service.ClassifyEmail(ctx, email)

	isSpam := result.Category == core.CategorySpam

	if isSpam && s.filter.blockSpam {
		s.filter.logger.Info("Rejecting spam email",
			zap.String("from", email.From),
			zap.String("sender_domain", senderDomain),
			zap.Float64("confidence", result.Confidence),
			zap.String("reason", result.Reasoning))
		return fmt.Errorf("550 Rejected as spam (confidence: %.2f)", result.Confidence)
	}

	// Prepend the verdict headers
	var modifiedEmail bytes.Buffer
	fmt.Fprintf(&modifiedEmail, "%s: %s\r\n", s.filter.headers.Category, result.Category)
	fmt.Fprintf(&modifiedEmail, "%s: %.4f\r\n", s.filter.headers.Confidence, result.Confidence)
	fmt.Fprintf(&modifiedEmail, "%s: %s\r\n", s.filter.headers.Reason, sanitizeHeaderValue(result.Reasoning))
	fmt.Fprintf(&modifiedEmail, "%s: %s\r\n", s.filter.headers.Stage, result.Stage)

	if isSpam && s.filter.modifySubject && s.filter.subjectPrefix != "" {
		s.writeHeadersWithSubjectPrefix(&modifiedEmail, msg)
	} else {
		writeHeaders(&modifiedEmail, msg.Header, "")
	}

	// End of headers
	fmt.Fprintf(&modifiedEmail, "\r\n")

	writeOriginalBody(&modifiedEmail, rawData, msg)

	if err := s.filter.sendToPostfix(s.sender, s.recipients, modifiedEmail.Bytes()); err != nil {
		s.filter.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("sender", email.From))
		return err
	}

	s.filter.logger.Info("Processed email",
		zap.String("from", email.From),
		zap.String("sender_domain", senderDomain),
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence),
		zap.String("stage", string(result.Stage)))

	return nil
}

// Logout handles SMTP logout (not needed for this filter)
func (s *smtpSession) Logout() error {
	return nil
}

// writeHeadersWithSubjectPrefix writes all headers, prefixing the subject
// when it doesn't already carry the prefix
func (s *smtpSession) writeHeadersWithSubjectPrefix(buf *bytes.Buffer, msg *mail.Message) {
	originalSubject := msg.Header.Get("Subject")

	decodedSubject, err := decodeEncodedHeader(originalSubject)
	if err != nil {
		decodedSubject = originalSubject
	}

	if !strings.HasPrefix(decodedSubject, s.filter.subjectPrefix) {
		fmt.Fprintf(buf, "Subject: %s%s\r\n", s.filter.subjectPrefix, decodedSubject)
		writeHeaders(buf, msg.Header, "Subject")
	} else {
		writeHeaders(buf, msg.Header, "")
	}
}

// writeHeaders writes all headers except the one named skip
func writeHeaders(buf *bytes.Buffer, header mail.Header, skip string) {
	for key, values := range header {
		if skip != "" && strings.EqualFold(key, skip) {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(buf, "%s: %s\r\n", key, value)
		}
	}
}

// writeOriginalBody appends the raw message body, preserving MIME parts
// and attachments
func writeOriginalBody(buf *bytes.Buffer, rawData []byte, msg *mail.Message) {
	if idx := bytes.Index(rawData, []byte("\r\n\r\n")); idx != -1 {
		buf.Write(rawData[idx+4:])
		return
	}
	if idx := bytes.Index(rawData, []byte("\n\n")); idx != -1 {
		buf.Write(rawData[idx+2:])
		return
	}
	// No separator found, fall back to the parsed body
	if bodyBytes, err := io.ReadAll(msg.Body); err == nil {
		buf.Write(bodyBytes)
	}
}

// sanitizeHeaderValue keeps injected header values single-line
func sanitizeHeaderValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}
