package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/battwatch/battwatch-go/pkg/history"
	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/service"
)

// console is the interactive command loop for battwatch.
type console struct {
	svc  *service.Service
	hist *history.Store
	rl   *readline.Instance
}

func newConsole(svc *service.Service, hist *history.Store) *console {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "battwatch> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		panic(fmt.Sprintf("create readline: %v", err))
	}

	c := &console{svc: svc, hist: hist, rl: rl}
	svc.OnEvent(c.handleEvent)
	return c
}

// Stdout returns a writer that coordinates with the readline prompt. Use it
// for log output so lines don't garble the input line.
func (c *console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "scan", "s":
			c.cmdScan(ctx)

		case "add", "a":
			c.cmdAdd(ctx, args)

		case "remove", "rm":
			c.cmdRemove(ctx, args)

		case "devices", "ls":
			c.cmdDevices()

		case "mode", "m":
			c.cmdMode(ctx, args)

		case "reload":
			c.svc.ReloadAll(ctx)
			fmt.Fprintln(c.rl.Stdout(), "Reload requested")

		case "history", "h":
			c.cmdHistory(args)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Battwatch Commands:
  Devices:
    scan               - Discover nearby battery agents
    add <id> [name]    - Register a device for tracking
    remove <id>        - Forget a device
    devices            - List registered devices and their levels

  Tracking:
    mode [name]        - Show or switch the mode (polling, notifications)
    reload             - Re-read every device now (polling mode)
    status             - Show mode and active monitors

  History:
    history <id>       - Show recorded battery levels for a device

  General:
    help               - Show this help
    quit               - Exit battwatch`)
}

func (c *console) cmdScan(ctx context.Context) {
	fmt.Fprintln(c.rl.Stdout(), "Scanning...")
	infos, err := c.svc.Scan(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Scan failed: %v\n", err)
		return
	}
	if len(infos) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No devices found")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(c.rl.Stdout(), "  %s  %s\n", info.ID, info.Name)
	}
}

func (c *console) cmdAdd(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: add <id> [name]")
		return
	}
	id := args[0]
	name := strings.Join(args[1:], " ")
	if err := c.svc.AddDevice(ctx, id, name); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Add failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Added %s\n", id)
}

func (c *console) cmdRemove(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: remove <id>")
		return
	}
	if err := c.svc.RemoveDevice(ctx, args[0]); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Remove failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Removed %s\n", args[0])
}

func (c *console) cmdDevices() {
	devices := c.svc.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No devices registered")
		return
	}
	for _, dev := range devices {
		fmt.Fprintf(c.rl.Stdout(), "  %s\n", formatDevice(dev))
	}
}

func (c *console) cmdMode(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.rl.Stdout(), "Mode: %s\n", c.svc.Mode())
		return
	}
	mode, err := monitor.ParseMode(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad mode: %v\n", err)
		return
	}
	c.svc.SetMode(ctx, mode)
	fmt.Fprintf(c.rl.Stdout(), "Mode: %s\n", mode)
}

func (c *console) cmdHistory(args []string) {
	if c.hist == nil {
		fmt.Fprintln(c.rl.Stdout(), "History is disabled")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: history <id>")
		return
	}
	id := args[0]
	name := ""
	for _, dev := range c.svc.Devices() {
		if dev.ID == id {
			name = dev.Name
			break
		}
	}
	records, err := c.hist.Read(id, name)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "History read failed: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No history recorded")
		return
	}
	for _, r := range records {
		desc := r.UserDescription
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %s  %-12s %3d%%\n", r.Timestamp, desc, r.BatteryLevel)
	}
}

func (c *console) cmdStatus() {
	fmt.Fprintf(c.rl.Stdout(), "Mode: %s\n", c.svc.Mode())
	active := c.svc.ActiveMonitors()
	if len(active) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Active monitors: none")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Active monitors: %s\n", strings.Join(active, ", "))
}

func (c *console) handleEvent(ev service.Event) {
	switch ev.Kind {
	case service.EventScanCompleted:
		if ev.Err != "" {
			fmt.Fprintf(c.rl.Stdout(), "[event] scan failed: %s\n", ev.Err)
		}
	case service.EventDeviceAdded:
		fmt.Fprintf(c.rl.Stdout(), "[event] device added: %s\n", ev.DeviceID)
	case service.EventDeviceRemoved:
		fmt.Fprintf(c.rl.Stdout(), "[event] device removed: %s\n", ev.DeviceID)
	case service.EventModeChanged:
		fmt.Fprintf(c.rl.Stdout(), "[event] mode changed: %s\n", ev.Mode)
	}
}

// formatDevice renders one registry entry for the device listing.
func formatDevice(dev registry.Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %s", dev.Name, dev.ID)
	if dev.Disconnected {
		b.WriteString("  [disconnected]")
	}
	for _, src := range dev.Sources {
		desc := "battery"
		if src.Descriptor != nil {
			desc = *src.Descriptor
		}
		if src.Level != nil {
			fmt.Fprintf(&b, "  %s=%d%%", desc, *src.Level)
		} else {
			fmt.Fprintf(&b, "  %s=?", desc)
		}
	}
	return b.String()
}
