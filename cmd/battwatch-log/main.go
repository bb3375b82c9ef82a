// Command battwatch-log is a tool for viewing and analyzing battwatch event
// log files.
//
// Log files are created by battwatch when the settings enable the event log.
//
// Usage:
//
//	battwatch-log <command> [flags] <file.blog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	battwatch-log view engine.blog
//
//	# View only report events for one device
//	battwatch-log view -category report -device af01bc engine.blog
//
//	# Export to JSONL
//	battwatch-log export -format jsonl engine.blog
//
//	# Keep only notification events in a new file
//	battwatch-log filter -category notification -o alerts.blog engine.blog
//
//	# Show statistics
//	battwatch-log stats engine.blog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/battwatch/battwatch-go/cmd/battwatch-log/commands"
	"github.com/battwatch/battwatch-go/pkg/eventlog"
)

const usage = `battwatch-log - Battwatch Event Log Analyzer

Usage:
  battwatch-log <command> [flags] <file.blog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "battwatch-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `battwatch-log view - View log file in human-readable format

Usage:
  battwatch-log view [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	device := fs.String("device", "", "Filter by device ID")
	category := fs.String("category", "", "Filter by category (reconcile, monitor, read, report, status, notification, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	var filter eventlog.Filter
	filter.DeviceID = *device
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `battwatch-log export - Export log file to JSON or CSV format

Usage:
  battwatch-log export [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `battwatch-log filter - Filter log file and write to new file

Usage:
  battwatch-log filter [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	device := fs.String("device", "", "Filter by device ID")
	category := fs.String("category", "", "Filter by category")
	timeStart := fs.String("time-start", "", "Events at or after this RFC3339 time")
	timeEnd := fs.String("time-end", "", "Events before this RFC3339 time")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	opts := commands.FilterOptions{
		Output:    *output,
		DeviceID:  *device,
		Category:  *category,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
	}
	if err := commands.RunFilter(path, opts); err != nil {
		fatal(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `battwatch-log stats - Show statistics about the log file

Usage:
  battwatch-log stats <file.blog>
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}

func requireFile(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
