package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/discovery"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/server"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/ui"
	"github.com/muurk/keytune/internal/version"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		host     string
		port     int
		certPath string
		keyPath  string
		name     string
		noAdvert bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket bridge for a remote UI",
		Long: `Expose the paired keyboard over HTTP and push connection status over a
WebSocket feed at /ws. The bridge is announced on the LAN over mDNS unless
--no-advertise is given.

Host, port and advertising default to the bridge section of config.yaml.
TLS is enabled when both --cert and --key are provided.`,
		Example: `  # Serve on the configured address
  keytune serve

  # Serve on all interfaces with TLS
  keytune serve --host 0.0.0.0 --cert cert.pem --key key.pem

  # Try it without a keyboard
  keytune --simulate serve --port 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (certPath == "") != (keyPath == "") {
				return fmt.Errorf("both --cert and --key must be provided together")
			}

			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			bp := a.prefs.Bridge
			if !cmd.Flags().Changed("host") && bp != nil {
				host = bp.Host
			}
			if !cmd.Flags().Changed("port") && bp != nil {
				port = bp.Port
			}
			advertise := !noAdvert
			if !cmd.Flags().Changed("no-advertise") && bp != nil {
				advertise = bp.Advertise
			}

			srv, err := server.New(&server.Config{Host: host, Port: port, CertPath: certPath, KeyPath: keyPath},
				a.sess, a.engine(g, nil))
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}

			ctx := cmd.Context()
			go func() {
				if _, err := a.sess.AutoConnect(ctx); err != nil {
					logging.Warn("Initial connect failed", zap.Error(err))
				}
			}()

			if advertise {
				ad, err := discovery.Advertise(discovery.AdvertiseOptions{
					Name:     name,
					Port:     srv.Port(),
					Version:  version.Version,
					Keyboard: string(a.pairedID(g)),
					TLS:      certPath != "",
				})
				if err != nil {
					// The bridge is still usable by address.
					logging.Warn("mDNS advertisement failed", zap.Error(err))
				} else {
					defer ad.Shutdown()
				}
			}

			a.out.PrintHeader("Bridge", "keytune serve",
				ui.Detail{Key: "Address", Value: srv.Addr().String()},
				ui.Detail{Key: "Feed", Value: "/ws"},
				ui.Detail{Key: "Advertise", Value: fmt.Sprint(advertise)},
			)
			return srv.Serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "127.0.0.1", "Interface to listen on")
	f.IntVar(&port, "port", server.DefaultPort, "Port to listen on (0 picks a free one)")
	f.StringVar(&certPath, "cert", "", "TLS certificate file")
	f.StringVar(&keyPath, "key", "", "TLS private key file")
	f.StringVar(&name, "name", "", "mDNS instance name (default: hostname)")
	f.BoolVar(&noAdvert, "no-advertise", false, "Do not announce the bridge over mDNS")
	return cmd
}

func newBridgesCmd(g *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "bridges",
		Short: "Find keytune bridges on the local network",
		Long: `Browse mDNS for keytune bridges started with 'keytune serve' and list
their addresses and the keyboard each one serves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ui.NewPrinter(cmd.OutOrStdout())
			out.Println(fmt.Sprintf("Browsing for bridges (timeout: %s)...", timeout))
			out.Newline()

			scanner := discovery.NewScanner()
			scanner.Timeout = timeout
			bridges, err := scanner.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if len(bridges) == 0 {
				out.Println("No bridges found.")
				out.Newline()
				out.Println("Troubleshooting:")
				out.Println("  - Check that 'keytune serve' is running without --no-advertise")
				out.Println("  - Make sure both machines are on the same network segment")
				out.Println("  - Try increasing --timeout")
				return nil
			}

			out.Println(fmt.Sprintf("Found %d bridge(s):", len(bridges)))
			out.Newline()
			for i, b := range bridges {
				out.Println(fmt.Sprintf("%d. %s", i+1, b.Instance))
				out.Println(fmt.Sprintf("   URL:      %s", b.BaseURL()))
				out.Println(fmt.Sprintf("   Feed:     %s", b.StatusFeedURL()))
				if kb := b.Keyboard(); kb != "" {
					out.Println(fmt.Sprintf("   Keyboard: %s", kb))
				}
				if v := b.GetMetadata("version"); v != "" {
					out.Println(fmt.Sprintf("   Version:  %s", v))
				}
				out.Newline()
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of the keyboard connection",
		Long: `Show the connection state as it changes. Press c to connect, d to
disconnect and q to quit. When output is not a terminal each transition is
printed as a line instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(g, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if liveOutput(cmd.OutOrStdout()) {
				go func() { _, _ = a.sess.AutoConnect(ctx) }()
				return ui.RunWatch(ctx, a.sess)
			}
			return watchLines(ctx, a)
		},
	}
}

// watchLines prints one line per status push until ctx is done.
func watchLines(ctx context.Context, a *app) error {
	unsubscribe := a.sess.Subscribe(session.ObserverFunc(func(st session.Status) {
		line := fmt.Sprintf("%s  %-20s %s", st.At.Format(time.TimeOnly), st.StateName, st.Message)
		a.out.Println(line)
	}))
	defer unsubscribe()

	if _, err := a.sess.AutoConnect(ctx); err != nil {
		a.out.Println("connect failed: " + err.Error())
	}
	<-ctx.Done()
	return nil
}
