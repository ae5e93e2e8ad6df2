package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	intentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_created_total",
			Help: "Payment intents created per event",
		},
		[]string{"event_id"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook deliveries by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by result",
		},
		[]string{"result"},
	)

	oversellEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oversell_escalations_total",
			Help: "Settlements that hit capacity after payment was captured",
		},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_redemptions_total",
			Help: "Redemption attempts by result",
		},
		[]string{"result"},
	)

	gatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Payment provider call failures by kind",
		},
		[]string{"kind"},
	)

	pendingIntents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_payment_intents",
			Help: "Intent sessions currently cached in Redis",
		},
	)
)

func TrackIntentCreated(eventID string) {
	intentsCreated.WithLabelValues(eventID).Inc()
}

func TrackWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func TrackSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

func TrackOversell() {
	oversellEscalations.Inc()
}

func TrackRedemption(result string) {
	redemptions.WithLabelValues(result).Inc()
}

func TrackGatewayError(kind string) {
	gatewayErrors.WithLabelValues(kind).Inc()
}

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		keys, err := m.redis.Keys(ctx, "payment_intent:*").Result()
		if err != nil {
			continue
		}
		pendingIntents.Set(float64(len(keys)))
	}
}
