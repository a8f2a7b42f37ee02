package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".switch"),
	readline.PcItem(".flush"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("MERGE"),
	readline.PcItem("SCAN",
		readline.PcItem("RANGE"),
	),
)

const helpText = `
lsmsh - interactive shell over the write buffer and block read path

Usage:
  lsmsh [-config DIR] [-log-level LEVEL] [-telemetry]

Commands:
  .help                   - Show this help message
  .exit                   - Exit the program
  .stats                  - Show statistics
  .switch                 - Retire the mutable memtable
  .flush                  - Turn immutable memtables into blocks

  PUT key value           - Store a key-value pair
  GET key                 - Retrieve a value by key
  DELETE key              - Delete a key
  MERGE key operand       - Append an operand to the value (comma separated)

  SCAN                    - Scan all key-value pairs
  SCAN prefix             - Scan key-value pairs with given prefix
  SCAN RANGE start end    - Scan key-value pairs in range [start, end)
`

var (
	configDir  = flag.String("config", "", "Directory holding an options file")
	logLevel   = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	enableOtel = flag.Bool("telemetry", false, "Export telemetry to stderr")
)

func main() {
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))

	cfg := config.NewDefaultConfig()
	if *configDir != "" {
		cfg, err = config.LoadConfig(*configDir)
		if errors.Is(err, config.ErrOptionsNotFound) {
			cfg = config.NewDefaultConfig()
			err = cfg.Save(*configDir)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading options: %s\n", err)
			os.Exit(1)
		}
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = "lsmsh"
	telCfg.Enabled = *enableOtel
	telCfg.Exporters = []string{"stderr"}
	telCfg.LoadFromEnv()
	tel, err := telemetry.New(telCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer tel.Shutdown(context.Background())

	s, err := newStore(cfg, logger, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating store: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("lsmsh version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	// Setup readline with history support
	historyFile := filepath.Join(os.TempDir(), ".lsmsh_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lsm> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := execute(context.Background(), s, line, os.Stdout); quit {
			fmt.Println("Goodbye!")
			return
		}
	}
}

// execute runs one shell command and reports whether the shell should exit
func execute(ctx context.Context, s *store, line string, out io.Writer) bool {
	parts := strings.Fields(line)
	cmd := strings.ToUpper(parts[0])

	// Special dot commands
	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(out, helpText)

		case ".exit":
			return true

		case ".stats":
			printStats(out, s.stats())

		case ".switch":
			mt, err := s.switchMemTable(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error switching memtable: %s\n", err)
				return false
			}
			fmt.Fprintf(out, "Memtable %d retired with %d entries\n", mt.ID(), mt.NumEntries())

		case ".flush":
			start := time.Now()
			n, err := s.flush(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error flushing memtables: %s\n", err)
				return false
			}
			fmt.Fprintf(out, "Flushed %d entries into blocks (%.2f ms)\n", n, float64(time.Since(start).Microseconds())/1000.0)

		default:
			fmt.Fprintf(out, "Unknown command: %s\n", cmd)
		}
		return false
	}

	switch cmd {
	case "PUT":
		if len(parts) < 3 {
			fmt.Fprintln(out, "Error: PUT requires key and value arguments")
			return false
		}
		report(out, s.write(ctx, keys.KindValue, []byte(parts[1]), []byte(strings.Join(parts[2:], " "))), "Value stored")

	case "MERGE":
		if len(parts) < 3 {
			fmt.Fprintln(out, "Error: MERGE requires key and operand arguments")
			return false
		}
		report(out, s.write(ctx, keys.KindMerge, []byte(parts[1]), []byte(strings.Join(parts[2:], " "))), "Operand merged")

	case "DELETE":
		if len(parts) < 2 {
			fmt.Fprintln(out, "Error: DELETE requires a key argument")
			return false
		}
		report(out, s.write(ctx, keys.KindDeletion, []byte(parts[1]), nil), "Key deleted")

	case "GET":
		if len(parts) < 2 {
			fmt.Fprintln(out, "Error: GET requires a key argument")
			return false
		}
		val, err := s.get(ctx, []byte(parts[1]))
		switch {
		case errors.Is(err, ErrKeyNotFound):
			fmt.Fprintln(out, "Key not found")
		case err != nil:
			fmt.Fprintf(out, "Error getting value: %s\n", err)
		default:
			fmt.Fprintf(out, "%s\n", val)
		}

	case "SCAN":
		var start, end []byte
		switch {
		case len(parts) == 1:
		case len(parts) == 2:
			start = []byte(parts[1])
			end = makeKeySuccessor(start)
		case len(parts) == 4 && strings.ToUpper(parts[1]) == "RANGE":
			start, end = []byte(parts[2]), []byte(parts[3])
		default:
			fmt.Fprintln(out, "Error: Invalid SCAN syntax. See .help for usage")
			return false
		}

		entries, err := s.scan(ctx, start, end)
		if err != nil {
			fmt.Fprintf(out, "Error scanning: %s\n", err)
			return false
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s: %s\n", e.Key, e.Value)
		}
		fmt.Fprintf(out, "%d entries found\n", len(entries))

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", cmd)
	}
	return false
}

func report(out io.Writer, err error, ok string) {
	if err != nil {
		fmt.Fprintf(out, "Error: %s\n", err)
		return
	}
	fmt.Fprintln(out, ok)
}

func printStats(out io.Writer, st map[string]interface{}) {
	names := make([]string, 0, len(st))
	for k := range st {
		names = append(names, k)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "Statistics:")
	for _, k := range names {
		fmt.Fprintf(out, "  %s: %v\n", k, st[k])
	}
}

// makeKeySuccessor creates the successor key for a prefix scan
// by adding a 0xFF byte to the end of the prefix
func makeKeySuccessor(prefix []byte) []byte {
	successor := make([]byte, len(prefix)+1)
	copy(successor, prefix)
	successor[len(prefix)] = 0xFF
	return successor
}
