package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/beaconpair/internal/device"
	goble "github.com/srg/beaconpair/internal/device/go-ble"
	"github.com/srg/beaconpair/internal/device/simulated"
	"github.com/srg/beaconpair/internal/groutine"
	"github.com/srg/beaconpair/internal/publish"
	"github.com/srg/beaconpair/internal/scan"
	"golang.org/x/term"
)

const watchRefreshInterval = time.Second

// mqttClient is the part of mqtt.Client the scan command uses.
type mqttClient interface {
	publish.Client
	Disconnect(quiesce uint)
}

// Overridable in tests.
var (
	scannerFactory = func(logger *logrus.Logger, simulate bool) device.Scanner {
		if simulate {
			return simulated.New(simulated.WithLogger(logger))
		}
		return goble.NewScanner(logger)
	}

	mqttConnect = func(broker, clientID string) (mqttClient, error) {
		return publish.Connect(broker, clientID)
	}

	isTerminal = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
)

type scanFlags struct {
	duration   time.Duration
	format     string
	watch      bool
	simulate   bool
	verbose    bool
	mqttBroker string
	mqttTopic  string
}

func newScanCmd() *cobra.Command {
	flags := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for proximity beacons",
		Long: `Scan for proximity beacons and display the discovery table.

Every beacon is listed once per identity (uuid, major, minor), with the most
recent signal strength, address and the number of advertisements received.
Press Ctrl+C to stop early; results gathered so far are still printed.`,
		Example: `  beaconpair scan
  beaconpair scan --duration 30s --format json
  beaconpair scan --watch --simulate
  beaconpair scan --mqtt-broker tcp://localhost:1883`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, flags)
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Scan duration (default from config, 0 with --watch for indefinite)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Continuously refresh the discovery table")
	cmd.Flags().BoolVar(&flags.simulate, "simulate", false, "Use simulated beacons instead of the Bluetooth adapter")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.mqttBroker, "mqtt-broker", "", "Publish discoveries to this MQTT broker (e.g. tcp://localhost:1883)")
	cmd.Flags().StringVar(&flags.mqttTopic, "mqtt-topic", "", "MQTT topic prefix (default from config)")
	return cmd
}

func runScan(cmd *cobra.Command, flags *scanFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if flags.format != "" {
		format = flags.format
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	duration := cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration = flags.duration
	} else if flags.watch {
		duration = 0
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	session := scan.NewSession(scan.Exclusive(scannerFactory(logger, flags.simulate)),
		scan.WithLogger(logger),
		scan.WithScanOptions(cfg.Scan),
		scan.WithUpdateBuffer(cfg.UpdateBuffer),
	)
	defer session.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if err := session.Start(ctx); err != nil {
		return err
	}

	broker := cfg.MQTT.Broker
	if flags.mqttBroker != "" {
		broker = flags.mqttBroker
	}
	if broker != "" {
		topic := cfg.MQTT.TopicPrefix
		if flags.mqttTopic != "" {
			topic = flags.mqttTopic
		}
		client, err := mqttConnect(broker, cfg.MQTT.ClientID)
		if err != nil {
			return err
		}
		published := make(chan struct{})
		pub := publish.NewMQTTPublisher(client, topic, logger)
		groutine.Go(ctx, "mqtt-publish", func(ctx context.Context) {
			defer close(published)
			_ = pub.Run(ctx, session.Updates())
		})
		defer func() {
			session.Close()
			<-published
			client.Disconnect(250)
		}()
		logger.WithFields(logrus.Fields{"broker": broker, "topic": topic}).Info("Publishing discoveries")
	}

	out := cmd.OutOrStdout()
	interactive := isTerminal(out)

	var progress *ProgressPrinter
	if interactive && !flags.watch {
		progress = NewProgressPrinter(out, "Scanning for beacons", duration, func() int { return len(session.Observe()) })
		progress.Start()
		defer progress.Stop()
	}

	render := func() error {
		return renderBeacons(out, session.Beacons(), format, interactive)
	}

	if err := waitScan(ctx, session, func() error {
		if !flags.watch {
			return nil
		}
		if interactive {
			clearScreen(out)
		}
		return render()
	}); err != nil {
		return err
	}

	session.Stop()
	if progress != nil {
		progress.Stop()
	}
	if flags.watch && interactive {
		clearScreen(out)
	}
	return render()
}

// waitScan blocks until ctx ends or the session leaves Scanning, calling tick
// on every refresh interval. A scan failure is returned; running out of time
// or being interrupted is not an error.
func waitScan(ctx context.Context, session *scan.Session, tick func() error) error {
	ticker := time.NewTicker(watchRefreshInterval)
	defer ticker.Stop()

	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			switch session.State() {
			case scan.Failed:
				return session.Err()
			case scan.Stopped:
				if err := session.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
		case <-ticker.C:
			if err := tick(); err != nil {
				return err
			}
		}
	}
}

func renderBeacons(w io.Writer, beacons []scan.DiscoveredBeacon, format string, colored bool) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(beacons)
	}

	if len(beacons) == 0 {
		_, err := fmt.Fprintln(w, "No beacons discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tMAJOR\tMINOR\tRSSI\tSEEN\tADDRESS\tLAST SEEN")
	for _, b := range beacons {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			b.Identity.UUID, b.Identity.Major, b.Identity.Minor,
			rssiCell(b.RSSI, colored), b.Count, b.Address,
			b.LastSeenAt.Local().Format(time.TimeOnly))
	}
	return tw.Flush()
}

// rssiCell colors the signal strength: strong green, weak red.
func rssiCell(rssi int, colored bool) string {
	cell := fmt.Sprintf("%d dBm", rssi)
	if !colored {
		return cell
	}
	var c *color.Color
	switch {
	case rssi >= -60:
		c = color.New(color.FgGreen)
	case rssi >= -75:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	c.EnableColor()
	return c.Sprint(cell)
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
