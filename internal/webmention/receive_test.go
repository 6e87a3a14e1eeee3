package webmention

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mjm/serverless-blog/internal/metrics"
	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
	"github.com/mjm/serverless-blog/internal/store"
)

type fakeQueueSender struct {
	entries []queue.Entry
}

func (f *fakeQueueSender) Send(ctx context.Context, entry queue.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeMailer) NotifyMention(ctx context.Context, site *models.SiteConfig, post *models.ContentItem, mention *models.Mention) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.Migrate(db))
	return store.NewStore(db, zap.NewNop())
}

type receiverFixture struct {
	store    *store.Store
	sender   *fakeQueueSender
	mailer   *fakeMailer
	receiver *Receiver
	post     *models.ContentItem
}

func newReceiverFixture(t *testing.T) *receiverFixture {
	t.Helper()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSiteConfig(ctx, &models.SiteConfig{
		TenantID:    "example.org",
		Title:       "Example",
		AuthorName:  "Jo Example",
		AuthorEmail: "jo@example.org",
	}))

	post := &models.ContentItem{
		TenantID:  "example.org",
		Path:      "posts/2023/04/hello",
		Name:      "Hello",
		Published: "2023-04-12T09:30:00Z",
	}
	require.NoError(t, s.Put(ctx, post))

	sender := &fakeQueueSender{}
	mailer := &fakeMailer{}
	receiver := NewReceiver(s, sender, mailer, metrics.New(), zap.NewNop())

	return &receiverFixture{
		store:    s,
		sender:   sender,
		mailer:   mailer,
		receiver: receiver,
		post:     post,
	}
}

func TestEnqueueValidation(t *testing.T) {
	f := newReceiverFixture(t)
	ctx := context.Background()

	err := f.receiver.Enqueue(ctx, "", "https://example.org/2023/04/hello/")
	assert.ErrorIs(t, err, ErrBadRequest)

	err = f.receiver.Enqueue(ctx, "https://other.example/reply", "")
	assert.ErrorIs(t, err, ErrBadRequest)

	err = f.receiver.Enqueue(ctx, "https://other.example/reply", "https://example.org/2023/04/missing/")
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.Empty(t, f.sender.entries)
}

func TestEnqueue(t *testing.T) {
	f := newReceiverFixture(t)

	err := f.receiver.Enqueue(context.Background(),
		"https://other.example/reply", "https://example.org/2023/04/hello/")
	require.NoError(t, err)

	require.Len(t, f.sender.entries, 1)
	entry := f.sender.entries[0]
	assert.Equal(t, EventReceive, entry.EventType)
	assert.Contains(t, string(entry.Body), "https://other.example/reply")
	assert.Contains(t, string(entry.Body), "posts/2023/04/hello")
}

const replyHTML = `<!DOCTYPE html>
<html><body>
<article class="h-entry">
  <div class="p-author h-card"><span class="p-name">Sam</span></div>
  <a class="u-url" href="https://other.example/reply">permalink</a>
  <time class="dt-published" datetime="2023-05-01T00:00:00Z">May 1</time>
  <a class="u-in-reply-to" href="https://example.org/2023/04/hello/">original</a>
  <div class="e-content"><p>nice post</p></div>
</article>
</body></html>`

func TestHandleEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, replyHTML)
	}))
	defer srv.Close()

	f := newReceiverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.receiver.HandleEvent(ctx, srv.URL, "https://example.org/2023/04/hello/", f.post))

	wantPath := models.MentionPath(f.post, "2023-05-01T00:00:00Z", "https://other.example/reply")
	mentions, err := f.store.MentionsForPost(ctx, f.post)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, wantPath, mentions[0].Path)
	assert.Equal(t, models.MentionKindReply, mentions[0].Kind())
	assert.Equal(t, "Sam", mentions[0].AuthorName())

	// the target post's denormalized count updates
	fresh, err := f.store.Get(ctx, "example.org", f.post.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.MentionCount)

	assert.Equal(t, 1, f.mailer.calls)
}

func TestHandleEventIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, replyHTML)
	}))
	defer srv.Close()

	f := newReceiverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.receiver.HandleEvent(ctx, srv.URL, "https://example.org/2023/04/hello/", f.post))
	require.NoError(t, f.receiver.HandleEvent(ctx, srv.URL, "https://example.org/2023/04/hello/", f.post))

	// the derived path makes re-ingestion overwrite, not duplicate
	count, err := f.store.CountMentions(ctx, f.post)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fresh, err := f.store.Get(ctx, "example.org", f.post.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.MentionCount)
}

func TestHandleEventNoEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body><p>just a page</p></body></html>`)
	}))
	defer srv.Close()

	f := newReceiverFixture(t)
	ctx := context.Background()

	// an unannotated source page is not an error
	require.NoError(t, f.receiver.HandleEvent(ctx, srv.URL, "https://example.org/2023/04/hello/", f.post))

	count, err := f.store.CountMentions(ctx, f.post)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.mailer.calls)
}

func TestHandleEventDefaultsURLToSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<article class="h-entry">
  <time class="dt-published" datetime="2023-05-02T00:00:00Z">May 2</time>
  <div class="e-content"><p>mentioned you</p></div>
</article>
</body></html>`)
	}))
	defer srv.Close()

	f := newReceiverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.receiver.HandleEvent(ctx, srv.URL, "https://example.org/2023/04/hello/", f.post))

	mentions, err := f.store.MentionsForPost(ctx, f.post)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, srv.URL, mentions[0].URL())
	assert.Equal(t, models.MentionKindMention, mentions[0].Kind())
}

func TestHandleEventSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := newReceiverFixture(t)

	// a fetch failure is transient and must surface for redelivery
	err := f.receiver.HandleEvent(context.Background(), srv.URL, "https://example.org/2023/04/hello/", f.post)
	assert.Error(t, err)
}

func TestHandleBatchUnknownEventType(t *testing.T) {
	f := newReceiverFixture(t)

	err := f.receiver.HandleBatch(context.Background(), []queue.Message{
		{ID: "x", EventType: "forget", Body: []byte(`{}`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown webmention event type")
}
