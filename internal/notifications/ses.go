package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// headerPattern matches common email header injection patterns.
// This catches: Bcc:, Cc:, To:, From:, Subject:, Reply-To:, X-*: headers
var headerPattern = regexp.MustCompile(`(?i)\b(bcc|cc|to|from|subject|reply-to|x-[a-z0-9-]+)\s*:`)

// urlPattern finds links in a plain-text body so the HTML part can link them.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

const charset = "UTF-8"

// SESClientAPI defines the SES operation used by SESNotifier.
// This allows for mocking in tests
type SESClientAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier emails the owner of a rotated key through SES. Both sender and
// recipient must be verified identities while the account is in the SES sandbox.
type SESNotifier struct {
	client    SESClientAPI
	from      string
	signature string
}

// NewSESNotifier creates a notifier sending from the given address. A nil
// client is built from cfg.
func NewSESNotifier(cfg aws.Config, from string, client SESClientAPI) (*SESNotifier, error) {
	if from == "" {
		return nil, fmt.Errorf("from address is required")
	}
	if client == nil {
		client = sesv2.NewFromConfig(cfg)
	}
	return &SESNotifier{client: client, from: from, signature: "AWS Admin"}, nil
}

// Send emails body to recipient with an HTML and a plain-text part.
func (n *SESNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{recipient}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(sanitizeHeader(subject)), Charset: aws.String(charset)},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: aws.String(n.buildHTMLBody(recipient, body)), Charset: aws.String(charset)},
					Text: &sestypes.Content{Data: aws.String(n.buildTextBody(body)), Charset: aws.String(charset)},
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}
	return nil
}

// buildHTMLBody renders each line of body as a paragraph, linking URLs.
func (n *SESNotifier) buildHTMLBody(recipient, body string) string {
	var buf bytes.Buffer

	buf.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>AWS Access Key Rotation</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
`)
	fmt.Fprintf(&buf, "<p>Hi,<br />Email: %s</p>\n", html.EscapeString(recipient))

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(&buf, "<p>%s</p>\n", linkify(line))
	}

	fmt.Fprintf(&buf, "<p>Thank you,<br />%s</p>\n</body>\n</html>", html.EscapeString(n.signature))
	return buf.String()
}

func (n *SESNotifier) buildTextBody(body string) string {
	return fmt.Sprintf("Hi,\n\n%s\n\nThank you,\n%s\n", strings.TrimSpace(body), n.signature)
}

// linkify escapes line and wraps every URL in an anchor.
func linkify(line string) string {
	var buf strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(line, -1) {
		buf.WriteString(html.EscapeString(line[last:loc[0]]))
		u := html.EscapeString(line[loc[0]:loc[1]])
		fmt.Fprintf(&buf, `<a href="%s">%s</a>`, u, u)
		last = loc[1]
	}
	buf.WriteString(html.EscapeString(line[last:]))
	return buf.String()
}

// sanitizeHeader removes newlines and header injection patterns to prevent
// both header injection and confusing subject lines.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")

	s = headerPattern.ReplaceAllString(s, "")

	return strings.Join(strings.Fields(s), " ")
}
