package webmention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mjm/serverless-blog/internal/generator"
	"github.com/mjm/serverless-blog/internal/metrics"
	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
	"github.com/mjm/serverless-blog/internal/store"
)

// EventReceive is the queue event type for accepted webmentions.
const EventReceive = "receive"

// ErrBadRequest marks user/input errors: they are reported to the caller
// synchronously and never retried.
var ErrBadRequest = errors.New("bad request")

// Sender enqueues a single message.
type Sender interface {
	Send(ctx context.Context, entry queue.Entry) error
}

// receiveMessage is the queued payload between the two ingestion phases.
// The post snapshot pins the target row; content-level state is re-read at
// handling time.
type receiveMessage struct {
	Source string             `json:"source"`
	Target string             `json:"target"`
	Post   models.ContentItem `json:"post"`
}

// Receiver ingests webmentions in two phases decoupled by a queue:
// Enqueue validates and accepts, HandleEvent verifies and attaches.
type Receiver struct {
	store   *store.Store
	sender  Sender
	client  *http.Client
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewReceiver(s *store.Store, sender Sender, mailer Mailer, m *metrics.Metrics, logger *zap.Logger) *Receiver {
	return &Receiver{
		store:   s,
		sender:  sender,
		client:  &http.Client{Timeout: 15 * time.Second},
		mailer:  mailer,
		metrics: m,
		logger:  logger.With(zap.String("component", "webmention")),
	}
}

// Enqueue validates the mention request and queues it for verification.
// Validation failures are user errors, never retried.
func (r *Receiver) Enqueue(ctx context.Context, source, target string) error {
	if source == "" {
		return fmt.Errorf("%w: no 'source' parameter included in request body", ErrBadRequest)
	}
	if target == "" {
		return fmt.Errorf("%w: no 'target' parameter included in request body", ErrBadRequest)
	}

	post, err := r.store.GetPostByURL(ctx, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: could not find a post for the target URL", ErrBadRequest)
		}
		return err
	}

	body, err := json.Marshal(receiveMessage{Source: source, Target: target, Post: *post})
	if err != nil {
		return fmt.Errorf("failed to encode webmention message: %w", err)
	}

	r.logger.Info("Enqueuing webmention",
		zap.String("source", source),
		zap.String("target", target))

	return r.sender.Send(ctx, queue.Entry{
		ID:        uuid.NewString(),
		EventType: EventReceive,
		Body:      body,
	})
}

// HandleBatch processes one delivered batch of webmention messages.
func (r *Receiver) HandleBatch(ctx context.Context, msgs []queue.Message) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			if msg.EventType != EventReceive {
				return fmt.Errorf("unknown webmention event type %q", msg.EventType)
			}

			var body receiveMessage
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return fmt.Errorf("failed to decode webmention message: %w", err)
			}
			return r.HandleEvent(ctx, body.Source, body.Target, &body.Post)
		})
	}
	return g.Wait()
}

// HandleEvent verifies the mention at source and attaches it to the target
// post. A source with no parsable entry is not an error: the remote page
// may simply not be annotated. The mention path is derived from the target
// post, the entry's published timestamp and its URL, so re-ingesting the
// same source/target pair overwrites the same record.
func (r *Receiver) HandleEvent(ctx context.Context, source, target string, post *models.ContentItem) error {
	r.logger.Info("Handling webmention",
		zap.String("source", source),
		zap.String("target", target))

	item, err := r.fetchEntry(ctx, source)
	if err != nil {
		return err
	}
	if item == nil {
		r.logger.Warn("No h-entry found at source URL", zap.String("source", source))
		return nil
	}

	if _, ok := item["url"].(string); !ok {
		item["url"] = source
	}
	published, ok := item["published"].(string)
	if !ok || published == "" {
		published = time.Now().UTC().Format(time.RFC3339)
		item["published"] = published
	}

	mention := &models.Mention{
		TenantID: post.TenantID,
		Path:     models.MentionPath(post, published, item["url"].(string)),
		PostPath: post.Path,
		Item:     item,
	}

	if err := r.store.PutMention(ctx, mention); err != nil {
		return err
	}

	if err := r.updateMentionCount(ctx, post); err != nil {
		return err
	}

	r.metrics.Mentions.Inc()

	// the mention is durable at this point; notification is best-effort
	generator.BestEffort(r.logger, "notify author", func() error {
		return r.notifyAuthor(ctx, post, mention)
	})

	return nil
}

// updateMentionCount re-reads the target post and persists the
// deduplicated mention count.
func (r *Receiver) updateMentionCount(ctx context.Context, post *models.ContentItem) error {
	count, err := r.store.CountMentions(ctx, post)
	if err != nil {
		return err
	}

	fresh, err := r.store.Get(ctx, post.TenantID, post.Path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Target post deleted before count update",
				zap.String("path", post.Path))
			return nil
		}
		return err
	}

	fresh.MentionCount = count
	return r.store.Put(ctx, fresh)
}

func (r *Receiver) notifyAuthor(ctx context.Context, post *models.ContentItem, mention *models.Mention) error {
	site, err := r.store.GetSiteConfig(ctx, post.TenantID)
	if err != nil {
		return err
	}
	return r.mailer.NotifyMention(ctx, site, post, mention)
}
