package generator

import (
	"context"
	"fmt"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
)

// Pinger notifies update-notification endpoints that a site changed.
type Pinger interface {
	SendPings(ctx context.Context, site *models.SiteConfig) error
}

// XMLRPCPinger speaks the legacy weblogUpdates.ping protocol.
type XMLRPCPinger struct {
	logger *zap.Logger
}

func NewPinger(logger *zap.Logger) *XMLRPCPinger {
	return &XMLRPCPinger{
		logger: logger.With(zap.String("component", "pinger")),
	}
}

// SendPings pings every configured endpoint once. Individual endpoint
// failures are collected rather than aborting the rest; the caller treats
// the whole operation as best-effort anyway.
func (p *XMLRPCPinger) SendPings(ctx context.Context, site *models.SiteConfig) error {
	var lastErr error
	for _, pingURL := range site.Pings {
		if err := p.sendPing(pingURL, site); err != nil {
			p.logger.Warn("Ping failed",
				zap.String("tenant_id", site.TenantID),
				zap.String("ping_url", pingURL),
				zap.Error(err))
			lastErr = err
			continue
		}
		p.logger.Info("Ping sent",
			zap.String("tenant_id", site.TenantID),
			zap.String("ping_url", pingURL))
	}
	return lastErr
}

func (p *XMLRPCPinger) sendPing(pingURL string, site *models.SiteConfig) error {
	client, err := xmlrpc.NewClient(pingURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create xmlrpc client: %w", err)
	}
	defer client.Close()

	var result any
	if err := client.Call("weblogUpdates.ping", []any{site.Title, site.BaseURL()}, &result); err != nil {
		return fmt.Errorf("failed to call weblogUpdates.ping: %w", err)
	}
	return nil
}
