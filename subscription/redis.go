package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

// DefaultChannel is the Redis channel carrying organizer events between
// API instances.
const DefaultChannel = "organizer:broadcast"

// Relay publishes events through Redis pub/sub and feeds every event received
// on the channel into the local hub, so clients connected to any instance see
// writes made through any other.
type Relay struct {
	rc      *redis.Client
	channel string
	hub     *Hub

	readyOnce sync.Once
	ready     chan struct{}
	retry     time.Duration
}

func NewRelay(rc *redis.Client, channel string, hub *Hub) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{rc: rc, channel: channel, hub: hub, ready: make(chan struct{}), retry: time.Second}
}

// Ready is closed once the first subscription has been confirmed.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Publish sends ev to the shared channel. When Redis is unreachable the event
// is delivered to local subscribers only.
func (r *Relay) Publish(ctx context.Context, ev domain.Event) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("kind", ev.Kind).Error("unable to encode broadcast")
		return
	}
	if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
		log.WithError(err).WithField("kind", ev.Kind).Error("redis publish failed, delivering locally")
		r.hub.Publish(ctx, ev)
	}
}

// Run forwards channel messages to the hub until ctx is cancelled,
// resubscribing whenever the pub/sub connection drops. Events published while
// the connection is down are lost, so local subscribers are disconnected on
// every drop and again once the subscription is back; they resync on
// reconnect.
func (r *Relay) Run(ctx context.Context) {
	resubscribe := false
	for {
		r.consume(ctx, resubscribe)
		if ctx.Err() != nil {
			return
		}
		if n := r.hub.DisconnectAll(); n > 0 {
			log.WithField("subscribers", n).Warn("pubsub lost, disconnected subscribers")
		}
		resubscribe = true
		log.WithField("channel", r.channel).Error("pubsub connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retry):
		}
	}
}

func (r *Relay) consume(ctx context.Context, resubscribe bool) {
	sub := r.rc.Subscribe(ctx, r.channel)
	defer sub.Close()
	stop := context.AfterFunc(ctx, func() { sub.Close() })
	defer stop()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			log.WithError(err).WithField("channel", r.channel).Error("subscribe failed")
		}
		return
	}
	if resubscribe {
		r.hub.DisconnectAll()
		log.WithField("channel", r.channel).Info("pubsub resubscribed")
	}
	r.readyOnce.Do(func() { close(r.ready) })

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).WithField("channel", r.channel).Error("pubsub receive failed")
			}
			return
		}
		var ev domain.Event
		if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
			log.WithError(err).Error("unable to parse broadcast")
			continue
		}
		if !ev.Kind.Valid() {
			log.WithField("kind", ev.Kind).Warn("ignoring unknown broadcast kind")
			continue
		}
		r.hub.Publish(ctx, ev)
	}
}
