package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/config"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/transport"
	"github.com/muurk/keytune/internal/transport/hidraw"
	"github.com/muurk/keytune/internal/transport/simulator"
	"github.com/muurk/keytune/internal/ui"
)

// app is everything a device command needs: the transport, a started
// session and a sync engine built from the config file and flags.
type app struct {
	prefs *config.Preferences
	tr    transport.Transport
	sess  *session.Session
	sim   *simulator.Keyboard // set with --simulate
	out   *ui.Printer
}

// simulatedOptions is the keyboard used by --simulate. It re-enumerates
// after risky writes like a real board.
func simulatedOptions() simulator.Options {
	return simulator.Options{
		Risky:          simulator.RiskyReconnect,
		ReconnectDelay: 200 * time.Millisecond,
	}
}

func openApp(g *globalFlags, out io.Writer) (*app, error) {
	reg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{prefs: reg.Preferences, out: ui.NewPrinter(out)}
	var store session.PairingStore
	if g.simulate {
		a.sim = simulator.New(simulatedOptions())
		a.tr = a.sim
		// The simulated keyboard is always paired and never touches the
		// config file.
		store = session.NewMemoryStore(a.sim.Info().StableID())
	} else {
		tr, err := hidraw.New(hidraw.DefaultOptions())
		if err != nil {
			return nil, err
		}
		a.tr = tr
		store = config.NewPairingFile(g.configPath)
	}

	a.sess = session.New(a.tr, store, sessionOptions(a.prefs.Session))
	a.sess.Start()
	logging.Debug("Session started", zap.Bool("simulate", g.simulate))
	return a, nil
}

func sessionOptions(p *config.SessionPrefs) session.Options {
	if p == nil {
		return session.DefaultOptions()
	}
	return session.Options{
		AutoConnect:   p.AutoConnect,
		Reads:         p.Reads,
		ProbeAttempts: p.ProbeAttempts,
		ProbeStep:     p.ProbeStep,
		InitRetries:   p.InitRetries,
		RiskyTimeout:  p.RiskyTimeout,
		RiskyGrace:    p.RiskyGrace,
	}
}

// syncOptions maps the config's sync block onto engine options. A positive
// --batch-size wins over the file.
func syncOptions(p *config.SyncPrefs, batchSize int) bulksync.Options {
	var opts bulksync.Options
	if p != nil {
		opts = bulksync.Options{
			BatchSize:  p.BatchSize,
			Throttle:   p.Throttle,
			PhasePause: p.PhasePause,
			Layers:     p.Layers,
			Fields:     p.Fields,
		}
	}
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	return opts
}

// engine builds a sync engine reporting progress to onProgress.
func (a *app) engine(g *globalFlags, onProgress func(bulksync.Progress)) *bulksync.Engine {
	opts := syncOptions(a.prefs.Sync, g.batchSize)
	opts.OnProgress = onProgress
	return bulksync.New(a.sess, opts)
}

// connect attaches to the paired keyboard. Unlike AutoConnect it treats a
// missing keyboard as an error.
func (a *app) connect(ctx context.Context, op string) (*transport.DeviceInfo, error) {
	dev, err := a.sess.AutoConnect(ctx)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, errs.NewNoDeviceError(op)
	}
	return dev, nil
}

func (a *app) close() {
	if err := a.sess.Close(); err != nil {
		logging.Debug("Session close failed", zap.Error(err))
	}
	if err := a.tr.Close(); err != nil {
		logging.Debug("Transport close failed", zap.Error(err))
	}
}

// keyboardLabel names a keyboard for headers and prompts.
func keyboardLabel(d *transport.DeviceInfo) string {
	if d == nil {
		return "no keyboard"
	}
	return fmt.Sprintf("%s (%s)", d.Name(), d.StableID())
}
