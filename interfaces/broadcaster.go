package interfaces

import (
	"context"

	"github.com/meshpay/meshledger/codec"
)

type Broadcaster interface {
	PublishDelta(ctx context.Context, env *codec.Envelope) error
}
