package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"
)

const outputBuffer = 256

// NewGoChannel builds the in-process transport behind the dispatcher.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: outputBuffer,
	}, logger)
}

var Module = fx.Module("pubsub",
	fx.Provide(
		NewGoChannel,
		func(gc *gochannel.GoChannel) EventDispatcher {
			return NewEventDispatcher(gc, gc)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, gc *gochannel.GoChannel) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return gc.Close()
			},
		})
	}),
)
