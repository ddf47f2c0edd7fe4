package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/werpogo98-bit/buoysync"
	"github.com/werpogo98-bit/buoysync/internal/adapters/serial"
)

// errIncomplete maps to exit code 2: readings were stored but the buoy
// never sent the end marker.
var errIncomplete = errors.New("dump ended without end marker")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "sync":
		err = syncCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "recover":
		err = recoverCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "ports":
		err = portsCommand()
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, errIncomplete) {
		fmt.Fprintf(os.Stderr, "buoy-sync %s: %v\n", cmd, err)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("buoy-sync %s: %v", cmd, err)
	}
}

func syncCommand(args []string) error {
	fs := pflag.NewFlagSet("sync", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file (optional)")
	start := fs.StringP("start", "s", "", "Buoy power-on time HH:MM:SS (default: ask, or now)")
	port := fs.StringP("port", "p", "", "Serial port, overrides serial.port")
	noPrompt := fs.Bool("no-prompt", false, "Never ask for the power-on time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := buoysync.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if err := cfg.ValidateSerial(); err != nil {
		return err
	}

	startInput := *start
	if !fs.Changed("start") && !*noPrompt && term.IsTerminal(int(os.Stdin.Fd())) {
		startInput, err = promptStart(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}

	rt, err := buoysync.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Requesting dump from %s...\n", cfg.Serial.Port)
	rep, err := rt.Sync(ctx, startInput)
	writeMetrics(rt)
	if err != nil {
		return fmt.Errorf("link error after %d readings (rolled back): %w", rep.Accepted, err)
	}
	return finish(rep)
}

func replayCommand(args []string) error {
	fs := pflag.NewFlagSet("replay", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file (optional)")
	file := fs.StringP("file", "f", "", "Captured dump to ingest, - for stdin")
	start := fs.StringP("start", "s", "", "Buoy power-on time HH:MM:SS (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	cfg, err := buoysync.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		in = f
	}

	rt, err := buoysync.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	rep, err := rt.Replay(context.Background(), in, *start)
	writeMetrics(rt)
	if err != nil {
		return err
	}
	return finish(rep)
}

func recoverCommand(args []string) error {
	fs := pflag.NewFlagSet("recover", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := buoysync.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Journal.Disabled {
		return errors.New("journal is disabled, nothing to recover")
	}

	rt, err := buoysync.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	reports, err := rt.Recover(context.Background())
	writeMetrics(rt)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("journal is clean, nothing to recover")
		return nil
	}
	for _, rep := range reports {
		fmt.Printf("recovered session %s: %d readings stored, %d lines rejected\n",
			rep.SessionID, rep.Accepted, rep.Rejected)
		if rep.SetAside != "" {
			fmt.Printf("  lines the store refused were moved to %s\n", rep.SetAside)
		}
	}
	return nil
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := buoysync.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSerial(); err != nil {
		return err
	}
	fmt.Printf("config looks good: port %s @ %d baud, store %s\n", cfg.Serial.Port, cfg.Serial.Baud, cfg.Store.Driver)
	return nil
}

func portsCommand() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func promptStart(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "When was the buoy switched on? (HH:MM:SS, Enter for now): ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func writeMetrics(rt *buoysync.Runtime) {
	if err := rt.WriteMetrics(); err != nil {
		fmt.Fprintf(os.Stderr, "metrics textfile: %v\n", err)
	}
}

func finish(rep buoysync.Report) error {
	fmt.Printf("Done. Stored %d readings, rejected %d lines (%s, %s).\n",
		rep.Accepted, rep.Rejected, rep.Outcome(), rep.Duration.Round(time.Millisecond))
	if !rep.Complete {
		return errIncomplete
	}
	return nil
}

func printUsage() {
	fmt.Printf(`buoy-sync

Usage:
  buoy-sync <command> [flags]

Commands:
  sync       Ask the buoy for its buffered readings and store them
  replay     Ingest a captured dump file without touching the serial port
  recover    Re-ingest journaled lines of sessions that never committed
  validate   Load and validate configuration without opening the port
  ports      List serial ports

Exit codes:
  0 dump complete, 1 error, 2 dump ended without end marker

Examples:
  buoy-sync sync --port /dev/ttyUSB0 --start 08:30:00
  buoy-sync replay --file capture.txt --start 08:30:00
  buoy-sync validate --config ./buoy.yaml
`)
}
