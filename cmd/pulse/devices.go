package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/pulse/internal/source"
	"github.com/verte-zerg/pulse/internal/stats"
)

var devicesTimeout time.Duration

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List nearby BLE heart-rate straps",
		Args:  cobra.NoArgs,
		RunE:  runDevicesCmd,
	}
	cmd.Flags().DurationVar(&devicesTimeout, "timeout", 5*time.Second, "scan duration")
	return cmd
}

func runDevicesCmd(cmd *cobra.Command, _ []string) error {
	if devicesTimeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	logErrf("Scanning for %s...\n", devicesTimeout)
	devices, err := source.ScanStraps(cmd.Context(), devicesTimeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		logErrln("No heart-rate straps found.")
		return nil
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{d.Address, name, strconv.Itoa(int(d.RSSI))})
	}
	out := cmd.OutOrStdout()
	for _, line := range stats.FormatTable([]string{"Address", "Name", "RSSI"}, rows, map[int]bool{2: true}) {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
