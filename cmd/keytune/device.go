package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/ui"
)

// parseRate accepts a rateOfReturn index (0-6) or a frequency such as
// "1000", "1000Hz" or "1000 Hz".
func parseRate(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= session.MaxPollingRate {
		return n, nil
	}
	hz := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(s), "hz"))
	for rate := 0; rate <= session.MaxPollingRate; rate++ {
		if strings.TrimSuffix(snapshot.RateLabel(rate), " Hz") == hz {
			return rate, nil
		}
	}
	return 0, errs.NewValidationError("polling_rate",
		fmt.Sprintf("unknown polling rate %q: use 0-%d or one of 8000, 4000, 2000, 1000, 500, 250, 125", s, session.MaxPollingRate))
}

func newPollingRateCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "polling-rate [value]",
		Short: "Show or change the USB polling rate",
		Long: `Without a value, print the current polling rate.

With a value, change it. The keyboard restarts and re-enumerates after the
change; keytune waits for it to come back and reconnects.`,
		Example: `  keytune polling-rate
  keytune polling-rate 1000Hz
  keytune polling-rate 3 --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rate int
			if len(args) == 1 {
				var err error
				if rate, err = parseRate(args[0]); err != nil {
					return err
				}
			}

			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if _, err := a.connect(ctx, "polling_rate"); err != nil {
				a.out.PrintError("Polling rate unavailable", err)
				return err
			}
			current, err := a.sess.GetPollingRate(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				a.out.Println(fmt.Sprintf("%s (%d)", snapshot.RateLabel(current), current))
				return nil
			}
			if rate == current {
				a.out.Println("Polling rate is already " + snapshot.RateLabel(rate))
				return nil
			}

			if !yes && !ui.NewConfirmer(cmd.InOrStdin(), cmd.OutOrStdout()).PollingRate(snapshot.RateLabel(current), snapshot.RateLabel(rate)) {
				return nil
			}
			return runRisky(cmd, a, "Polling rate change", func() error {
				return a.sess.SetPollingRate(ctx, rate)
			}, ui.Detail{Key: "Polling rate", Value: snapshot.RateLabel(rate)})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newFactoryResetCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "factory-reset",
		Short: "Restore the keyboard's factory settings",
		Long: `Erase every binding, macro and lighting setting on the paired keyboard.

The keyboard restarts and re-enumerates; keytune waits for it to come back.
Run 'keytune export' first if you want to keep your configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			dev, err := a.connect(cmd.Context(), "factory_reset")
			if err != nil {
				a.out.PrintError("Factory reset unavailable", err)
				return err
			}
			if !yes && !ui.NewConfirmer(cmd.InOrStdin(), cmd.OutOrStdout()).FactoryReset(dev.Name()) {
				return nil
			}
			return runRisky(cmd, a, "Factory reset", func() error {
				return a.sess.FactoryReset(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// runRisky performs a write that makes the keyboard re-enumerate and waits
// until the session has re-attached or given up.
func runRisky(cmd *cobra.Command, a *app, title string, write func() error, details ...ui.Detail) error {
	ctx := cmd.Context()
	a.out.Println(ui.StepRunningStyle.Render(ui.StepMarkerRunning + " Waiting for the keyboard to come back..."))

	if err := write(); err != nil {
		a.out.PrintError(title+" failed", err)
		return err
	}
	if err := a.sess.WaitRisky(ctx); err != nil {
		a.out.PrintError(title+" failed", err)
		return err
	}

	st := a.sess.Status()
	if !st.Initialized {
		err := errs.New(errs.KindNotDiscoverable, "wait_risky", "keyboard did not come back: "+st.Message)
		a.out.PrintError(title+" incomplete", err)
		return err
	}
	details = append(details, ui.Detail{Key: "State", Value: st.StateName})
	a.out.PrintSuccess(title+" complete", details...)
	return nil
}
