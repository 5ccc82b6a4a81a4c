// Command loadgen drives the inbound webhook gateway with signed
// Stripe-style events. A fraction of requests replays an event id the
// server already accepted, exercising the deduplication path the same
// way a provider retry storm would.
//
// Usage:
//
//	loadgen -url http://localhost:8080 -connector <uuid> -secret whsec_xxx \
//	    -rate 50 -duration 30s -replay 0.1
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pulseboard/tools/loadgen/internal/event"
	"github.com/pulseboard/tools/loadgen/internal/pool"
)

type counters struct {
	sent       atomic.Int64
	accepted   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	errors     atomic.Int64
}

// outcomeEnvelope is the success response shape of the webhook endpoint.
type outcomeEnvelope struct {
	Data struct {
		DeliveryID string `json:"delivery_id"`
		Status     string `json:"status"`
		Duplicate  bool   `json:"duplicate"`
	} `json:"data"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	connectorID := flag.String("connector", "", "target connector ID (required)")
	secret := flag.String("secret", "", "connector webhook secret (required)")
	rate := flag.Int("rate", 20, "events per second")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	workers := flag.Int("workers", 4, "concurrent senders")
	replayFraction := flag.Float64("replay", 0.1, "fraction of requests replaying an accepted event")
	flag.Parse()

	if *connectorID == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	cfg := pool.DefaultPoolConfig()
	cfg.DefaultTTL = *duration
	values := pool.NewShardedParameterPool(cfg)
	defer values.Close()

	endpoint := fmt.Sprintf("%s/api/v1/webhooks/stripe/%s", *baseURL, *connectorID)
	client := &http.Client{Timeout: 10 * time.Second}
	stats := &counters{}

	// One token per event, shared by all workers
	tokens := make(chan struct{}, *rate)
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(*rate))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(tokens)
				return
			case <-ticker.C:
				select {
				case tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			gen := event.NewGenerator(*secret, seed)
			rng := rand.New(rand.NewSource(seed))
			for range tokens {
				send(ctx, client, endpoint, gen, rng, *replayFraction, values, stats)
			}
		}(time.Now().UnixNano() + int64(i))
	}

	start := time.Now()
	wg.Wait()
	report(values, stats, time.Since(start))
}

// send posts one event, either fresh or a replay of a pooled body.
func send(ctx context.Context, client *http.Client, endpoint string, gen *event.Generator, rng *rand.Rand, replayFraction float64, values pool.ParameterPool, stats *counters) {
	var body []byte
	replaying := false

	if rng.Float64() < replayFraction {
		if pooled, err := values.GetRandom(ctx, pool.SemanticTypeEventID); err == nil && pooled != nil {
			body = pooled.Value.([]byte)
			replaying = true
		}
	}
	if body == nil {
		evt, err := gen.Next()
		if err != nil {
			stats.errors.Add(1)
			return
		}
		body = evt.Body
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		stats.errors.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", gen.Sign(body, time.Now()))

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.errors.Add(1)
		}
		return
	}
	defer resp.Body.Close()
	stats.sent.Add(1)

	if resp.StatusCode != http.StatusOK {
		stats.rejected.Add(1)
		return
	}

	var outcome outcomeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		stats.errors.Add(1)
		return
	}

	if outcome.Data.Duplicate {
		stats.duplicates.Add(1)
		return
	}
	stats.accepted.Add(1)

	// Accepted fresh bodies join the pool so later requests can replay them
	if !replaying {
		value := pool.NewParameterValue(body, pool.SemanticTypeEventID, 0).
			WithSource("POST /api/v1/webhooks/stripe/{connector_id}", "$.id")
		if _, err := values.Add(ctx, value); err != nil {
			log.Printf("pool add: %v", err)
		}
		if outcome.Data.DeliveryID != "" {
			delivery := pool.NewParameterValue(outcome.Data.DeliveryID, pool.SemanticTypeDeliveryID, 0).
				WithSource("POST /api/v1/webhooks/stripe/{connector_id}", "$.data.delivery_id")
			if _, err := values.Add(ctx, delivery); err != nil {
				log.Printf("pool add: %v", err)
			}
		}
	}
}

func report(values pool.ParameterPool, stats *counters, elapsed time.Duration) {
	sent := stats.sent.Load()
	fmt.Printf("\n--- webhook load summary ---\n")
	fmt.Printf("elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("sent:       %d (%.1f/s)\n", sent, float64(sent)/elapsed.Seconds())
	fmt.Printf("accepted:   %d\n", stats.accepted.Load())
	fmt.Printf("duplicates: %d\n", stats.duplicates.Load())
	fmt.Printf("rejected:   %d\n", stats.rejected.Load())
	fmt.Printf("errors:     %d\n", stats.errors.Load())

	if poolStats, err := values.Stats(context.Background()); err == nil {
		fmt.Printf("pool:       %d values, %.1f%% hit rate, %d evicted\n",
			poolStats.TotalValues, poolStats.HitRate(), poolStats.EvictionCount)
	}
}
