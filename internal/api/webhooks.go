package api

import (
	"context"
	"strings"
	"time"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/reconciler"
	"custody-wallet-go/internal/webhook"

	"go.uber.org/zap"
)

// HandleProviderWebhook decodes and applies one provider delivery. Receipt is
// always acknowledged; the outcome is only logged and counted.
func (s *WalletService) HandleProviderWebhook(ctx context.Context, providerName string, payload []byte) models.WebhookAck {
	providerName = strings.ToLower(strings.TrimSpace(providerName))

	ev, err := webhook.Decode(payload)
	if err != nil {
		zap.L().Warn("Discarding undecodable webhook",
			zap.String("provider", providerName),
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err))
		s.reconciler.RecordMalformed(providerName)
		return models.WebhookAck{Received: true, Outcome: string(reconciler.Failed)}
	}

	ctx = models.WithSettlementContext(ctx, &models.SettlementContext{
		Provider:   providerName,
		Source:     "webhook",
		EventType:  ev.Name(),
		TxHash:     webhook.TxHash(ev),
		ReceivedAt: time.Now().UTC(),
	})

	outcome, _ := s.reconciler.Handle(ctx, providerName, ev)

	zap.L().Debug("Webhook handled",
		zap.String("provider", providerName),
		zap.String("event", ev.Name()),
		zap.String("outcome", string(outcome)))

	return models.WebhookAck{Received: true, Outcome: string(outcome)}
}
