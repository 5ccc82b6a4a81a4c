// Package event builds signed Stripe-style webhook payloads for load
// generation. Bodies carry the same envelope the gateway parses and the
// signature header uses the timestamped HMAC scheme the receiver verifies.
package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

// Types the generator cycles through. Entity events exercise the mapper
// upsert path, invoice events exercise the status update path.
var eventTypes = []string{
	"customer.created",
	"customer.updated",
	"invoice.paid",
	"invoice.payment_failed",
	"customer.subscription.updated",
}

// Event is one generated webhook delivery ready to post.
type Event struct {
	ID   string
	Type string
	Body []byte
}

// Generator produces webhook events with unique external event ids.
type Generator struct {
	secret string
	rng    *rand.Rand
	seq    int64
}

// NewGenerator creates a generator signing with the given connector secret.
func NewGenerator(secret string, seed int64) *Generator {
	return &Generator{
		secret: secret,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next builds the next event. Event ids are unique per generator so the
// receiver treats each as a fresh delivery.
func (g *Generator) Next() (*Event, error) {
	g.seq++
	eventType := eventTypes[g.rng.Intn(len(eventTypes))]
	eventID := fmt.Sprintf("evt_load_%d_%06d", g.rng.Int31(), g.seq)

	body, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": g.object(eventType),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", eventID, err)
	}

	return &Event{ID: eventID, Type: eventType, Body: body}, nil
}

// object builds a data.object shaped for the event type.
func (g *Generator) object(eventType string) map[string]any {
	switch eventType {
	case "customer.created", "customer.updated":
		n := g.rng.Intn(100000)
		return map[string]any{
			"id":       fmt.Sprintf("cus_load%06d", n),
			"email":    fmt.Sprintf("load-%06d@example.com", n),
			"name":     fmt.Sprintf("Load Customer %06d", n),
			"currency": "usd",
		}
	case "customer.subscription.updated":
		n := g.rng.Intn(100000)
		return map[string]any{
			"id":                 fmt.Sprintf("sub_load%06d", n),
			"status":             "active",
			"currency":           "usd",
			"customer":           fmt.Sprintf("cus_load%06d", n),
			"current_period_end": time.Now().Add(30 * 24 * time.Hour).Unix(),
		}
	default:
		return map[string]any{
			"id": fmt.Sprintf("in_load%06d", g.rng.Intn(100000)),
		}
	}
}

// Sign returns the signature header value for a body at the given time.
func (g *Generator) Sign(body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
