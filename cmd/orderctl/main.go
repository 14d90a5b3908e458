// Command orderctl inspects and nudges orders from an operator shell.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/cache"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/database"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/jobqueue"
)

var Version = "dev"

func main() {
	env.SetupEnvFile()

	rootCmd := newRootCmd(connect)
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect opens MySQL and the Redis queue with the same settings as the server.
func connect() (*backend, error) {
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	queue := jobqueue.NewQueueWithClient(cache.GetClient(), jobqueue.LoadConfig())
	return &backend{
		Orders:     repository.GetGlobalFactory().GetOrderRepository(),
		Scheduler:  jobqueue.NewOrderScheduler(queue),
		StallAfter: fulfillment.LoadConfig().StallAfter,
		Now:        time.Now,
	}, nil
}

// Scheduler enqueues order advances.
type Scheduler interface {
	ScheduleAdvance(ctx context.Context, orderID string, delay time.Duration, reason string) error
}

type backend struct {
	Orders     repository.OrderReader
	Scheduler  Scheduler
	StallAfter time.Duration
	Now        func() time.Time
}
