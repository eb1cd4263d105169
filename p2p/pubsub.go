package p2p

import (
	"context"
	"fmt"

	"github.com/meshpay/meshledger/codec"
	"github.com/meshpay/meshledger/exception"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

func (ln *Libp2pNetwork) setupPubSubTopic() error {
	var err error
	if ln.topicDeltas, err = ln.pubsub.Join(ln.topicName); err != nil {
		return fmt.Errorf("failed to join topic %s: %w", ln.topicName, err)
	}
	if ln.subDeltas, err = ln.topicDeltas.Subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", ln.topicName, err)
	}
	exception.SafeGoWithPanic("HandleDeltaTopic", func() {
		ln.HandleDeltaTopic(ln.ctx, ln.subDeltas)
	})
	return nil
}

func (ln *Libp2pNetwork) HandleDeltaTopic(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.Error("NETWORK:DELTA", "Subscription error:", err)
			return
		}
		if msg.ReceivedFrom == ln.host.ID() {
			continue
		}
		if !ln.seen.Add(codec.MessageID(msg.Data)) {
			continue
		}

		monitoring.IncreaseGossipMessage("in", codec.MsgDeltaAnnounce.String())
		ln.dispatchGossip(ctx, msg.ReceivedFrom.String(), msg.Data)
	}
}

func (ln *Libp2pNetwork) dispatchGossip(ctx context.Context, from string, data []byte) {
	defer exception.Recover("HandleGossip")
	if err := ln.handler.HandleGossip(ctx, from, data); err != nil {
		logx.Warn("NETWORK:DELTA", "Dropped message from", from, ":", err)
	}
}

// PublishDelta gossips env to every subscriber of the delta topic.
func (ln *Libp2pNetwork) PublishDelta(ctx context.Context, env *codec.Envelope) error {
	if ln.topicDeltas == nil {
		return fmt.Errorf("delta topic is not initialized")
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	ln.seen.Add(codec.MessageID(data))
	if err := ln.topicDeltas.Publish(ctx, data); err != nil {
		return fmt.Errorf("failed to publish delta: %w", err)
	}
	monitoring.IncreaseGossipMessage("out", env.Type.String())
	return nil
}
