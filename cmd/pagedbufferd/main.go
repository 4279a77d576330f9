// Command pagedbufferd is a thin wiring demonstration: it loads a buffer
// engine config, opens a file into a Buffer, and runs a cron-driven sweep
// that periodically checks for external changes and validates invariants,
// logging every notification the buffer emits. It is not a REPL or editor.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	pagedbuffer "github.com/SimonWaldherr/pagedbuffer"
	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
	"github.com/SimonWaldherr/pagedbuffer/internal/pagestore"
	"github.com/SimonWaldherr/pagedbuffer/internal/sweep"
)

var (
	flagFile      = flag.String("file", "", "file to load into the buffer")
	flagConfig    = flag.String("config", "", "optional YAML config file (vpm sizing, change strategy)")
	flagOverflow  = flag.String("overflow-dir", "", "directory for the on-disk overflow page store (empty: in-memory only)")
	flagSQLite    = flag.String("overflow-sqlite", "", "path to a SQLite database for the overflow page store (takes precedence over -overflow-dir)")
	flagSweepCron = flag.String("sweep-cron", "*/30 * * * * *", "cron expression for the background sweep (seconds-resolution)")
)

func main() {
	flag.Parse()
	if *flagFile == "" {
		log.Fatal("pagedbufferd: -file is required")
	}

	cfg := pagedbuffer.FileConfig{}
	if *flagConfig != "" {
		loaded, err := pagedbuffer.LoadConfig(*flagConfig)
		if err != nil {
			log.Fatalf("pagedbufferd: %v", err)
		}
		cfg = loaded
	}

	var storage pagestore.PageStorage
	switch {
	case *flagSQLite != "":
		sqlite, err := pagestore.NewSQLiteBackend(*flagSQLite)
		if err != nil {
			log.Fatalf("pagedbufferd: overflow backend: %v", err)
		}
		defer sqlite.Close()
		storage = sqlite
	case *flagOverflow != "":
		disk, err := pagestore.NewDiskBackend(*flagOverflow)
		if err != nil {
			log.Fatalf("pagedbufferd: overflow backend: %v", err)
		}
		storage = disk
	default:
		storage = pagestore.NewMemoryBackend()
	}

	buf := pagedbuffer.New(pagedbuffer.Config{VPM: cfg.VPMConfig(), Storage: storage})
	buf.SetChangeStrategy(cfg.ChangeStrategyConfig())
	buf.Notifications(func(n notify.Notification) {
		log.Printf("[%s] %s: %s %v", n.Severity, n.Type, n.Message, n.Metadata)
	})

	if err := buf.LoadFile(*flagFile); err != nil {
		log.Fatalf("pagedbufferd: load %s: %v", *flagFile, err)
	}
	log.Printf("pagedbufferd: loaded %s (%d bytes)", *flagFile, buf.TotalSize())

	runner := sweep.New()
	if _, err := runner.Schedule(*flagSweepCron, 30*time.Second, func(ctx context.Context) error {
		if _, err := buf.CheckFileChanges(); err != nil {
			return err
		}
		return buf.CheckIntegrity()
	}); err != nil {
		log.Fatalf("pagedbufferd: schedule sweep: %v", err)
	}
	runner.Start()
	defer runner.Stop()

	select {}
}
