package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mjm/serverless-blog/internal/blob"
	"github.com/mjm/serverless-blog/internal/config"
	"github.com/mjm/serverless-blog/internal/generator"
	"github.com/mjm/serverless-blog/internal/metrics"
	"github.com/mjm/serverless-blog/internal/queue"
	"github.com/mjm/serverless-blog/internal/store"
	"github.com/mjm/serverless-blog/internal/webmention"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Store           *store.Store
	Planner         *generator.Planner
	Dispatcher      *generator.Dispatcher
	ChangeProcessor *generator.ChangeProcessor
	Worker          *generator.Worker
	Receiver        *webmention.Receiver
	Metrics         *metrics.Metrics

	generateProducer   *queue.Producer
	webmentionProducer *queue.Producer
	consumers          []*queue.Consumer
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	st := store.NewStore(db, logger)

	// Initialize blob storage and the renderer cache on top of it
	blobClient, err := blob.NewClient(ctx, cfg.Blob, cfg.Generator.TemplatePrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob client: %w", err)
	}
	renderers := generator.NewRendererCache(blobClient, logger)

	// Initialize queue producers
	generateProducer := queue.NewProducer(cfg.Queue, cfg.Queue.GenerateTopic, logger)
	webmentionProducer := queue.NewProducer(cfg.Queue, cfg.Queue.WebmentionTopic, logger)

	// Initialize services
	m := metrics.New()
	collector := generator.NewCollector(logger)
	planner := generator.NewPlanner(st, cfg.Generator.RecentCount, logger)
	dispatcher := generator.NewDispatcher(generateProducer, logger)
	processor := generator.NewChangeProcessor(st, collector, planner, dispatcher, m, logger)

	embedder := generator.NewEmbedder(cfg.Generator.OEmbedEndpoint, logger)
	decorator := generator.NewDecorator(embedder)
	worker := generator.NewWorker(st, blobClient, renderers, decorator,
		generator.NewPinger(logger), m, cfg.Generator.RecentCount, logger)

	var mailer webmention.Mailer = webmention.NoopMailer{}
	if cfg.Mail.Enabled {
		mailer, err = webmention.NewSESMailer(ctx, cfg.Mail, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mailer: %w", err)
		}
	}
	receiver := webmention.NewReceiver(st, webmentionProducer, mailer, m, logger)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:             cfg,
		DB:                 db,
		Router:             router,
		Logger:             logger,
		Store:              st,
		Planner:            planner,
		Dispatcher:         dispatcher,
		ChangeProcessor:    processor,
		Worker:             worker,
		Receiver:           receiver,
		Metrics:            m,
		generateProducer:   generateProducer,
		webmentionProducer: webmentionProducer,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// Request ID middleware
	s.Router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	})

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

// Start launches the queue consumers and the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.startConsumer(ctx, s.Config.Queue.ChangesTopic, s.ChangeProcessor.HandleBatch)
	s.startConsumer(ctx, s.Config.Queue.GenerateTopic, s.Worker.HandleBatch)
	s.startConsumer(ctx, s.Config.Queue.WebmentionTopic, s.Receiver.HandleBatch)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) startConsumer(ctx context.Context, topic string, handle queue.Handler) {
	consumer := queue.NewConsumer(s.Config.Queue, topic, s.Logger)
	s.consumers = append(s.consumers, consumer)

	go func() {
		if err := consumer.Run(ctx, handle); err != nil {
			s.Logger.Error("Consumer stopped",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop consumers and flush producers first
	for _, c := range s.consumers {
		if err := c.Close(); err != nil {
			s.Logger.Error("Failed to close consumer", zap.Error(err))
		}
	}
	if err := s.generateProducer.Close(); err != nil {
		s.Logger.Error("Failed to close producer", zap.Error(err))
	}
	if err := s.webmentionProducer.Close(); err != nil {
		s.Logger.Error("Failed to close producer", zap.Error(err))
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
