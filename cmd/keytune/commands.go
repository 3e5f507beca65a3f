package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/config"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
	"github.com/muurk/keytune/internal/ui"
)

// stdioName makes export write to stdout and import read from stdin.
const stdioName = "-"

func newScanCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List attached keyboards",
		Long: `List every keyboard whose vendor configuration interface is attached.

The paired keyboard, if any, is marked with an asterisk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			devices, err := a.sess.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				a.out.Println("No keyboards found.")
				a.out.Newline()
				a.out.Println("Troubleshooting:")
				a.out.Println("  - Check the USB cable and try another port")
				a.out.Println("  - On Linux, make sure your user can open /dev/hidraw*")
				a.out.Println("  - Close vendor configurator software that holds the interface")
				return nil
			}

			paired := a.pairedID(g)
			a.out.Println(fmt.Sprintf("Found %d keyboard(s):", len(devices)))
			a.out.Newline()
			for i, d := range devices {
				mark := " "
				if d.StableID() == paired {
					mark = "*"
				}
				a.out.Println(fmt.Sprintf("%s %d. %s", mark, i+1, d.Name()))
				a.out.Println(fmt.Sprintf("     ID:      %s", d.StableID()))
				a.out.Println(fmt.Sprintf("     USB:     %04x:%04x", d.VendorID, d.ProductID))
				if d.Path != "" {
					a.out.Println(fmt.Sprintf("     Path:    %s", d.Path))
				}
			}
			a.out.Newline()
			a.out.Println("Use 'keytune pair [number]' to pair a keyboard")
			return nil
		},
	}
}

// pairedID reads the paired keyboard from the config file. The simulated
// keyboard counts as paired.
func (a *app) pairedID(g *globalFlags) transport.StableID {
	if a.sim != nil {
		return a.sim.Info().StableID()
	}
	id, _ := config.NewPairingFile(g.configPath).Load()
	return id
}

func newPairCmd(g *globalFlags) *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "pair [number]",
		Short: "Pair a keyboard",
		Long: `Connect to a keyboard and remember it as the one paired device.

With a single keyboard attached no argument is needed. Otherwise pass the
number shown by 'keytune scan'. Pairing replaces any earlier pairing and
forgets what was remembered about other keyboards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			devices, err := a.sess.Scan(cmd.Context())
			if err != nil {
				return err
			}
			chosen, err := chooseDevice(devices, args)
			if err != nil {
				return err
			}

			dev, err := a.sess.Pair(cmd.Context(), chosen)
			if err != nil {
				a.out.PrintError("Pairing failed", err)
				return err
			}
			if nickname != "" && !g.simulate {
				if err := config.Update(g.configPath, func(r *config.Registry) error {
					r.SetDeviceNickname(dev.StableID(), nickname)
					return nil
				}); err != nil {
					return err
				}
			}
			a.out.PrintSuccess("Keyboard paired",
				ui.Detail{Key: "Keyboard", Value: dev.Name()},
				ui.Detail{Key: "ID", Value: string(dev.StableID())},
				ui.Detail{Key: "State", Value: a.sess.State().String()},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "Friendly name to remember for the keyboard")
	return cmd
}

// chooseDevice picks the keyboard named by a 1-based index argument, or the
// only one attached.
func chooseDevice(devices []transport.DeviceInfo, args []string) (transport.DeviceInfo, error) {
	if len(devices) == 0 {
		return transport.DeviceInfo{}, errs.NewNoDeviceError("pair")
	}
	if len(args) == 0 {
		if len(devices) > 1 {
			return transport.DeviceInfo{}, errs.NewValidationError("pair",
				fmt.Sprintf("%d keyboards attached; pass the number shown by 'keytune scan'", len(devices)))
		}
		return devices[0], nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(devices) {
		return transport.DeviceInfo{}, errs.NewValidationError("pair",
			fmt.Sprintf("keyboard number must be between 1 and %d", len(devices)))
	}
	return devices[n-1], nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect to the paired keyboard and show its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			// A missing keyboard is a state worth reporting, not a failure.
			if _, err := a.sess.AutoConnect(cmd.Context()); err != nil && !errs.IsNoDevice(err) {
				a.out.Println(ui.ErrorMessageStyle.Render(errs.ShortMessage(err)))
			}
			st := a.sess.Status()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			a.out.PrintStatus(st)
			if st.Initialized {
				if rate, err := a.sess.GetPollingRate(cmd.Context()); err == nil {
					a.out.Println(ui.ResultKeyStyle.Render("  Polling rate:") + " " + snapshot.RateLabel(rate))
				}
				if info, err := a.sess.BaseInfo(cmd.Context()); err == nil {
					a.out.Println(ui.ResultKeyStyle.Render("  Firmware:") + " " + info.FirmwareVersion)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

// syncOutput is where progress goes: stderr when the snapshot itself is
// streamed over stdout.
func syncOutput(cmd *cobra.Command, file string) io.Writer {
	if file == stdioName {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// liveOutput reports whether w is the interactive terminal.
func liveOutput(w io.Writer) bool {
	return w == io.Writer(os.Stdout) && ui.IsTerminal()
}

func newExportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Save the keyboard configuration to a JSON snapshot",
		Long: `Read the full configuration of the paired keyboard and write it as a
JSON snapshot. Use "-" to write the snapshot to stdout.

Fields that cannot be read after retries keep their defaults; the summary
reports how many.`,
		Example: `  keytune export board.json
  keytune --batch-size 8 export - > board.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			out := syncOutput(cmd, file)
			a, err := openApp(g, out)
			if err != nil {
				return err
			}
			defer a.close()

			dev, err := a.connect(cmd.Context(), "export")
			if err != nil {
				a.out.PrintError("Export failed", err)
				return err
			}

			var snap *snapshot.Snapshot
			runner := ui.NewSyncRunner(ui.SyncRunnerConfig{
				Title:   "Export",
				Command: "keytune export " + file,
				Params:  []ui.Detail{{Key: "Keyboard", Value: keyboardLabel(dev)}, {Key: "File", Value: file}},
				Phases:  ui.ExportPhases,
				Output:  out,
				Live:    liveOutput(out),
			})
			_, err = runner.Run(func(onProgress func(bulksync.Progress)) (*bulksync.Report, error) {
				s, report, err := a.engine(g, onProgress).Export(cmd.Context())
				snap = s
				return report, err
			})
			if err != nil {
				return err
			}

			if file == stdioName {
				return snapshot.Encode(cmd.OutOrStdout(), snap)
			}
			if err := snapshot.Save(file, snap); err != nil {
				return err
			}
			a.out.Println("  " + snap.Summary())
			return nil
		},
	}
}

// loadSnapshot reads a snapshot file, or stdin for "-".
func loadSnapshot(cmd *cobra.Command, file string) (*snapshot.Snapshot, error) {
	if file == stdioName {
		return snapshot.Decode(cmd.InOrStdin())
	}
	return snapshot.Load(file)
}

func newImportCmd(g *globalFlags) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replay a JSON snapshot onto the keyboard",
		Long: `Validate a snapshot and write it to the paired keyboard.

Writes are not retried and nothing is rolled back: failed writes are listed
in the summary and the rest of the snapshot is still applied. The polling
rate is never replayed; use 'keytune polling-rate' for that.`,
		Example: `  keytune import board.json
  keytune import --verify board.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			snap, err := loadSnapshot(cmd, file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			a, err := openApp(g, out)
			if err != nil {
				return err
			}
			defer a.close()

			dev, err := a.connect(cmd.Context(), "import")
			if err != nil {
				a.out.PrintError("Import failed", err)
				return err
			}

			runner := ui.NewSyncRunner(ui.SyncRunnerConfig{
				Title:   "Import",
				Command: "keytune import " + file,
				Params: []ui.Detail{
					{Key: "Keyboard", Value: keyboardLabel(dev)},
					{Key: "Snapshot", Value: snap.Summary()},
				},
				Phases: ui.ImportPhases,
				Output: out,
				Live:   liveOutput(out),
			})
			if _, err := runner.Run(func(onProgress func(bulksync.Progress)) (*bulksync.Report, error) {
				return a.engine(g, onProgress).Import(cmd.Context(), snap)
			}); err != nil {
				return err
			}
			if !verify {
				return nil
			}

			live, _, err := a.engine(g, nil).Export(cmd.Context())
			if err != nil {
				return err
			}
			mismatches := snapshot.Compare(snap, live)
			a.out.Newline()
			if len(mismatches) == 0 {
				a.out.PrintSuccess("Verified", ui.Detail{Key: "Keys", Value: strconv.Itoa(len(snap.Keyboards))})
				return nil
			}
			a.out.PrintWarning("Keyboard differs from snapshot",
				ui.Detail{Key: "Mismatches", Value: snapshot.FormatMismatches(mismatches)})
			return errs.NewValidationError("verify", fmt.Sprintf("%d settings did not stick", len(mismatches)))
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Export again afterwards and compare")
	return cmd
}

func newDiffCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <file>",
		Short: "Compare a snapshot file with the keyboard",
		Long: `Export the paired keyboard and print a unified diff against a snapshot
file. Lines starting with "-" are on the keyboard, "+" are in the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			want, err := loadSnapshot(cmd, file)
			if err != nil {
				return err
			}

			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.connect(cmd.Context(), "diff"); err != nil {
				return err
			}
			live, report, err := a.engine(g, nil).Export(cmd.Context())
			if err != nil {
				return err
			}
			// Exports stamp their own version and macro dates.
			live.Version = want.Version
			alignMacroDates(live, want)

			diff, err := snapshot.Diff(live, want, "keyboard", file)
			if err != nil {
				return err
			}
			if diff == "" {
				a.out.Println("No differences.")
			} else {
				a.out.PrintDiff(diff)
			}
			if report.Degraded > 0 {
				a.out.Newline()
				a.out.Println(ui.WarningTitleStyle.Render(fmt.Sprintf("%s %d fields could not be read and show defaults", ui.WarningMarker, report.Degraded)))
			}
			return nil
		},
	}
}

// alignMacroDates copies creation dates for macros present in both
// snapshots so they do not show up as differences.
func alignMacroDates(live, want *snapshot.Snapshot) {
	dates := make(map[int]string, len(want.Macro.List))
	for _, m := range want.Macro.List {
		dates[m.Key] = m.Date
	}
	for i := range live.Macro.List {
		if d, ok := dates[live.Macro.List[i].Key]; ok {
			live.Macro.List[i].Date = d
		}
	}
}
