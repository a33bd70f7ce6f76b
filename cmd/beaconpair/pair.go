package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/pairing"
	"github.com/srg/beaconpair/internal/store/sqlite"
)

// Overridable in tests.
var (
	newPairingID = uuid.NewString
	clock        = func() time.Time { return time.Now().UTC() }
)

// withCoordinator opens the pairing database and runs fn against it.
func withCoordinator(cmd *cobra.Command, fn func(ctx context.Context, c *pairing.Coordinator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	coord := pairing.NewCoordinator(store,
		pairing.WithLogger(logger),
		pairing.WithIDGenerator(newPairingID),
		pairing.WithClock(clock),
	)
	return fn(ctx, coord)
}

func addOwnerFlag(cmd *cobra.Command, owner *string) {
	cmd.Flags().StringVarP(owner, "owner", "o", "", "Owning account id (required)")
	_ = cmd.MarkFlagRequired("owner")
}

func newPairCmd() *cobra.Command {
	var owner, label, format string
	cmd := &cobra.Command{
		Use:   "pair <key>",
		Short: "Pair a beacon with an owner",
		Long: `Pair the beacon identified by <uuid>:<major>:<minor> with an owner.

A beacon can be paired with one owner at a time; pairing an already paired
beacon fails until it is unpaired.`,
		Example: `  beaconpair pair e2c56db5-dffb-48d2-b060-d0f5a71096e0:1:1 --owner team-42 --label "Front door"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := beacon.ParseKey(args[0])
			if err != nil {
				return err
			}
			if err := checkFormat(format); err != nil {
				return err
			}
			return withCoordinator(cmd, func(ctx context.Context, c *pairing.Coordinator) error {
				p, err := c.Pair(ctx, owner, identity, label)
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(cmd.OutOrStdout(), p)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Paired %s as %s\n", p.Key(), p.ID)
				return err
			})
		},
	}
	addOwnerFlag(cmd, &owner)
	cmd.Flags().StringVarP(&label, "label", "l", "", fmt.Sprintf("Display label (max %d characters)", pairing.MaxLabelLen))
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func newRenameCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "rename <id> <label>",
		Short: "Change the label of a paired beacon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, func(ctx context.Context, c *pairing.Coordinator) error {
				p, err := c.Rename(ctx, owner, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", p.ID, p.Label)
				return err
			})
		},
	}
	addOwnerFlag(cmd, &owner)
	return cmd
}

func newUnpairCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "unpair <id>",
		Short: "Remove a pairing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, func(ctx context.Context, c *pairing.Coordinator) error {
				if err := c.Unpair(ctx, owner, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Unpaired %s\n", args[0])
				return err
			})
		},
	}
	addOwnerFlag(cmd, &owner)
	return cmd
}

func newListCmd() *cobra.Command {
	var owner, format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List beacons paired with an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return withCoordinator(cmd, func(ctx context.Context, c *pairing.Coordinator) error {
				list, err := c.List(ctx, owner)
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				return renderPaired(cmd.OutOrStdout(), list)
			})
		},
	}
	addOwnerFlag(cmd, &owner)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func checkFormat(format string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func renderPaired(w io.Writer, list []pairing.PairedBeacon) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No paired beacons")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEY\tLABEL\tPAIRED AT")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Key(), p.Label, p.PairedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
