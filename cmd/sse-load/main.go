package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"organizer/client"
	"organizer/domain"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

type counters struct {
	events   atomic.Uint64
	attempts atomic.Uint64
	failures atomic.Uint64
	moves    atomic.Uint64
}

func main() {
	serverURL := getenv("ORGANIZER_URL", "http://localhost:5000")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	moveEvery := time.Duration(getenvInt("MOVE_INTERVAL_MS", 500)) * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	api := client.NewHTTP(serverURL, client.DefaultTimeout)
	var c counters

	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			listen(ctx, api, &c)
		}()
	}

	if moveEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			churn(ctx, api, moveEvery, &c)
		}()
	}

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if c.events.Load() == 0 {
				fmt.Println("no events received in 60s")
				os.Exit(1)
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	failures := c.failures.Load()
	attempts := c.attempts.Load()
	events := c.events.Load()
	failureRate := 0.0
	if attempts > 0 {
		failureRate = float64(failures) / float64(attempts)
	}
	fmt.Printf("connections=%d duration_sec=%d moves=%d events_received=%d connection_failures=%d\n",
		conns, int(duration.Seconds()), c.moves.Load(), events, failures)
	if events == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

// listen holds one stream open for the whole run, reconnecting with backoff.
func listen(ctx context.Context, api *client.HTTP, c *counters) {
	backoff := time.Second
	for ctx.Err() == nil {
		c.attempts.Add(1)
		connected := false
		err := api.Subscribe(ctx, func() error {
			connected = true
			return nil
		}, func(domain.Event) {
			c.events.Add(1)
		})
		if ctx.Err() != nil {
			return
		}
		c.failures.Add(1)
		if connected {
			backoff = time.Second
		}
		log.WithError(err).Debug("stream closed")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

// churn keeps broadcasts flowing by rotating the first root item to the end.
func churn(ctx context.Context, api *client.HTTP, every time.Duration, c *counters) {
	engine := client.NewEngine(api, client.Options{
		OnError: func(err error) { log.WithError(err).Warn("move failed") },
	})
	if err := engine.Load(ctx); err != nil {
		log.WithError(err).Error("initial load")
		return
	}
	for len(engine.RootItems()) < 2 {
		if _, err := engine.CreateItem(ctx, domain.NewItem{Title: "load", Icon: "description"}); err != nil {
			log.WithError(err).Error("seed item")
			return
		}
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		items := engine.RootItems()
		if len(items) == 0 {
			continue
		}
		moved, err := engine.MoveItem(ctx, items[0].ID, domain.Root, math.MaxInt32)
		if err == nil && moved {
			c.moves.Add(1)
		}
	}
}
