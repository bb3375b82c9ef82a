// Command battwatch-agent hosts a simulated battery device on the LAN
// bridge. It advertises itself over mDNS and serves battery reads and push
// subscriptions, draining its simulated cells over time so a battwatch
// instance has something to track.
//
// Usage:
//
//	battwatch-agent [flags]
//
// Flags:
//
//	-id string          Device identifier (default: random)
//	-name string        Advertised display name (default "Simulated Keyboard")
//	-port int           Listen port (default: ephemeral)
//	-iface string       Restrict mDNS advertising to one network interface
//	-central int        Initial central battery level (default 100)
//	-peripherals string Comma-separated name=level pairs, e.g. "left=90,right=85"
//	-drain duration     Interval between 1% drain steps, 0 disables (default 30s)
//
// Examples:
//
//	# Advertise a split keyboard with two peripheral halves
//	battwatch-agent -name "Corne" -peripherals "left=92,right=88"
//
//	# Fixed port, fast drain for demos
//	battwatch-agent -port 9456 -drain 2s
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/battwatch/battwatch-go/pkg/bridge"
)

func main() {
	var (
		id          = flag.String("id", "", "device identifier (default: random)")
		name        = flag.String("name", "Simulated Keyboard", "advertised display name")
		port        = flag.Int("port", 0, "listen port (default: ephemeral)")
		iface       = flag.String("iface", "", "restrict mDNS advertising to one network interface")
		central     = flag.Int("central", 100, "initial central battery level")
		peripherals = flag.String("peripherals", "", "comma-separated name=level pairs")
		drain       = flag.Duration("drain", defaultDrainInterval, "interval between 1% drain steps, 0 disables")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	deviceID := *id
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	sim := newSimulation(*central, *drain)
	for _, pair := range splitPairs(*peripherals) {
		peerName, level, err := parsePair(pair)
		if err != nil {
			log.Fatalf("bad -peripherals entry %q: %v", pair, err)
		}
		sim.AddPeripheral(peerName, level)
	}

	srv := bridge.NewServer(bridge.ServerConfig{
		DeviceID:   deviceID,
		DeviceName: *name,
		Port:       *port,
		Interface:  *iface,
		Advertise:  true,
		Log:        logger,
	}, sim)

	if err := srv.Start(); err != nil {
		log.Fatalf("start agent: %v", err)
	}
	sim.Start()

	logger.Info("agent running", "id", deviceID, "name", *name, "addr", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	sim.Stop()
	srv.Stop()
}

func splitPairs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parsePair(pair string) (name string, level int, err error) {
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	if !ok || name == "" {
		return "", 0, errBadPair
	}
	level, err = strconv.Atoi(value)
	if err != nil {
		return "", 0, err
	}
	if level < 0 || level > 100 {
		return "", 0, errBadLevel
	}
	return name, level, nil
}
