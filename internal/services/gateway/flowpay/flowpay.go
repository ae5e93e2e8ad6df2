// Package flowpay implements the payment gateway boundary against the
// FlowPay provider: HMAC-signed REST calls for intent creation and lookup,
// webhook signature verification, and the provider's PubNub push channel
// for transaction notices.
package flowpay

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/services/gateway"
)

type Config struct {
	BaseURL       string `json:"baseUrl" mapstructure:"base_url"`
	APIKey        string `json:"apiKey" mapstructure:"api_key"`
	WebhookSecret string `json:"webhookSecret" mapstructure:"webhook_secret"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
}

type FlowPay struct {
	webhookSecret string

	pnChannels []string

	sub *subscribe

	client *Client
}

// pushPayload is the wire shape of a FlowPay push notice.
type pushPayload struct {
	IntentID string          `json:"intentId"`
	State    string          `json:"state"`
	Amount   decimal.Decimal `json:"txnAmount"`
	PaidAt   string          `json:"txnDateTime"`
}

// New returns a new FlowPay instance. The push subscription is optional;
// without a configured channel the provider is webhook-only.
func New(ctx context.Context, cfg *Config) (*FlowPay, error) {
	f := &FlowPay{
		webhookSecret: cfg.WebhookSecret,
		client:        newClient(cfg),
	}

	if cfg.PNChannel == "" {
		return f, nil
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
	pnCfg.SubscribeKey = cfg.PNSubKey
	pnCfg.SecretKey = cfg.PNSubSecret

	f.pnChannels = []string{cfg.PNChannel}

	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}
	sub.pn.AddListener(sub.lis)
	go sub.processSubscription(ctx)

	sub.pn.Subscribe().Channels(f.pnChannels).Execute()
	f.sub = sub

	return f, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener

	mu sync.RWMutex
	ch chan *gateway.PaymentNotice // guarded by mu; set after the loop starts
}

func (s *subscribe) setChannel(ch chan *gateway.PaymentNotice) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
}

// forward delivers a notice to the configured channel. Notices arriving
// before a channel is set are dropped; the webhook path still carries them.
func (s *subscribe) forward(n *gateway.PaymentNotice) {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()

	if ch != nil {
		ch <- n
	}
}

func (s *subscribe) processSubscription(ctx context.Context) {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to flowpay push channel")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to flowpay push channel")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from flowpay push channel")

			case pubnub.PNAccessDeniedCategory:
				log.Println("access denied on flowpay push channel")

			default:
				log.Println("flowpay push channel status:", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var p pushPayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				slog.Error("flowpay: decode push payload", "error", err)
				continue
			}

			s.forward(p.toNotice())

		case <-ctx.Done():
			log.Println("close flowpay push subscription")
			return
		}
	}
}

func (p *pushPayload) toNotice() *gateway.PaymentNotice {
	received := time.Now()
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.PaidAt, time.Local); err == nil {
		received = ts
	}

	return &gateway.PaymentNotice{
		ProviderIntentID: p.IntentID,
		Status:           p.State,
		Amount:           p.Amount,
		ReceivedAt:       received,
	}
}

func (f *FlowPay) CreateIntent(ctx context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	return f.client.createIntent(ctx, req)
}

func (f *FlowPay) CheckIntent(ctx context.Context, providerIntentID string) (*gateway.Intent, error) {
	return f.client.checkIntent(ctx, providerIntentID)
}

// VerifySignature checks a webhook body against the configured secret.
// A missing secret never verifies; forged settlement must be impossible.
func (f *FlowPay) VerifySignature(body []byte, signature string) bool {
	if f.webhookSecret == "" || signature == "" {
		return false
	}
	return ValidSignature(body, []byte(f.webhookSecret), signature)
}

func (f *FlowPay) SetNoticeChannel(ch chan *gateway.PaymentNotice) {
	if f.sub != nil {
		f.sub.setChannel(ch)
	}
}

func (f *FlowPay) Close(_ context.Context) error {
	if f.sub != nil {
		f.sub.pn.Unsubscribe().Channels(f.pnChannels).Execute()
	}
	return nil
}
