package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/werpogo98-bit/buoysync"
)

func main() {
	flow, err := buoysync.Conf("../../data/buoy.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := flow.Sync(ctx, os.Getenv("BUOY_START"))
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}
	log.Printf("stored %d readings, rejected %d (%s)", rep.Accepted, rep.Rejected, rep.Outcome())
}
