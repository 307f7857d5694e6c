// Package main demonstrates one-shot fix scheduling against the fake
// provider: it requests fixes at progressively stricter accuracy tiers while
// a continuous subscriber watches the stream.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"go.viam.com/positioning/broadcast"
	"go.viam.com/positioning/fake"
	"go.viam.com/positioning/scheduler"
)

var logger = golog.NewDevelopmentLogger("onefix")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	provider := fake.NewProvider(fake.Config{EmitInterval: 200 * time.Millisecond}, nil, logger)
	defer func() {
		utils.UncheckedError(provider.Close(ctx))
	}()

	bcast := broadcast.NewBroadcaster(logger)
	sched, err := scheduler.New(provider, bcast, bcast, scheduler.Config{}, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		utils.UncheckedError(sched.Close(ctx))
	}()

	sub := bcast.Subscribe(8)
	defer sub.Close()
	go func() {
		for s := range sub.Samples() {
			logger.Debugw("tracking sample",
				"lat", s.Location.Lat(), "lng", s.Location.Lng(), "accuracy", s.HorizontalAccuracy)
		}
	}()

	for _, accuracy := range []float64{100, 25, 5} {
		sample, err := sched.RequestOneFix(ctx, accuracy, 10*time.Second)
		if err != nil {
			return err
		}
		logger.Infow("got fix",
			"wanted", accuracy,
			"got", sample.HorizontalAccuracy,
			"lat", sample.Location.Lat(),
			"lng", sample.Location.Lng())
	}
	return nil
}
