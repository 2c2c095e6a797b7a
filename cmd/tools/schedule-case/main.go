// cmd/tools/schedule-case/main.go
//
// Operational tool: schedules a vehicle lookup case by hand, the same way
// the conversation layer does. Useful for replaying a customer identifier
// against a running pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/database"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/pipeline"
	"gearbox-workers/internal/store"
)

func main() {
	var (
		tenantID       = flag.String("tenant", "", "tenant id")
		conversationID = flag.String("conversation", "", "conversation id")
		messageID      = flag.String("message", "", "originating message id (optional)")
		idType         = flag.String("type", "VIN", "identifier type: VIN or FRAME")
		value          = flag.String("value", "", "the identifier itself")
	)
	flag.Parse()

	if *tenantID == "" || *conversationID == "" || *value == "" {
		fmt.Fprintln(os.Stderr, "usage: schedule-case -tenant t -conversation c -type VIN -value <vin>")
		os.Exit(2)
	}

	var kind models.IdentifierType
	switch strings.ToUpper(*idType) {
	case "VIN":
		kind = models.IDTypeVIN
	case "FRAME":
		kind = models.IDTypeFrame
	default:
		fmt.Fprintf(os.Stderr, "unknown identifier type %q\n", *idType)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres failed", zap.Error(err))
	}
	defer pg.Close()

	redis, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis failed", zap.Error(err))
	}
	defer redis.Close()

	vehicleQueue, err := queue.New(redis.Client, models.QueueVehicleLookup, models.VehicleLookupJobSchema)
	if err != nil {
		zapLog.Fatal("queue init failed", zap.Error(err))
	}

	scheduler := pipeline.NewScheduler(store.NewCaseStore(pg), vehicleQueue, audit.NoopRecorder{}, log)

	c, err := scheduler.Schedule(ctx, *tenantID, *conversationID, *messageID, kind, *value)
	if err != nil {
		zapLog.Fatal("schedule failed", zap.Error(err))
	}

	fmt.Printf("scheduled case %s (%s %s)\n", c.ID, c.IDType, c.NormalizedValue)
}
