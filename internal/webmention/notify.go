package webmention

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/config"
	"github.com/mjm/serverless-blog/internal/models"
)

// Mailer notifies a site author about a new mention of their post.
type Mailer interface {
	NotifyMention(ctx context.Context, site *models.SiteConfig, post *models.ContentItem, mention *models.Mention) error
}

// NoopMailer is used when mail is disabled in config.
type NoopMailer struct{}

func (NoopMailer) NotifyMention(context.Context, *models.SiteConfig, *models.ContentItem, *models.Mention) error {
	return nil
}

var mentionMailBody = template.Must(template.New("mention").Parse(
	`{{.Author}} {{.Verb}} your post{{if .Title}} "{{.Title}}"{{end}}.

Post: {{.PostURL}}
Source: {{.SourceURL}}
`))

// SESMailer sends mention notifications through Amazon SES.
type SESMailer struct {
	ses    *sesv2.Client
	sender string
	logger *zap.Logger
}

func NewSESMailer(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		ses:    sesv2.NewFromConfig(awsCfg),
		sender: cfg.Sender,
		logger: logger.With(zap.String("component", "mailer")),
	}, nil
}

func (m *SESMailer) NotifyMention(ctx context.Context, site *models.SiteConfig, post *models.ContentItem, mention *models.Mention) error {
	if site.AuthorEmail == "" {
		return nil
	}

	author := mention.AuthorName()
	if author == "" {
		author = "Someone"
	}

	var body strings.Builder
	err := mentionMailBody.Execute(&body, map[string]any{
		"Author":    author,
		"Verb":      mentionVerb(mention.Kind()),
		"Title":     post.Name,
		"PostURL":   strings.TrimSuffix(site.BaseURL(), "/") + post.Permalink(),
		"SourceURL": mention.URL(),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("New %s on %s", mention.Kind(), site.Title)

	m.logger.Info("Sending mention notification",
		zap.String("tenant_id", site.TenantID),
		zap.String("to", site.AuthorEmail))

	_, err = m.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &m.sender,
		Destination: &types.Destination{
			ToAddresses: []string{site.AuthorEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Text: &types.Content{Data: stringPtr(body.String())},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send mention notification: %w", err)
	}
	return nil
}

func mentionVerb(kind models.MentionKind) string {
	switch kind {
	case models.MentionKindReply:
		return "replied to"
	case models.MentionKindLike:
		return "liked"
	default:
		return "mentioned"
	}
}

func stringPtr(s string) *string { return &s }
