package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/werpogo98-bit/buoysync"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: callback <captured-dump.txt> [HH:MM:SS]")
	}
	var start string
	if len(os.Args) > 2 {
		start = os.Args[2]
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatalf("open dump: %v", err)
	}

	flow, err := buoysync.ConfFromConfig(&buoysync.Config{
		Journal: buoysync.JournalConfig{Disabled: true},
	})
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	callback := func(batch []buoysync.StoredReading) error {
		for _, r := range batch {
			fmt.Printf("#%d %s tds=%.1f turb=%.2f ph=%.2f status=%s\n",
				r.ID,
				r.RealTime.Format("2006-01-02 15:04:05"),
				r.TDS, r.Turb, r.PH, r.Status,
			)
		}
		return nil
	}

	rep, err := flow.IntoCallback("stdout", callback).Replay(context.Background(), f, start)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if !rep.Complete {
		log.Printf("warning: dump has no end marker")
	}
}
