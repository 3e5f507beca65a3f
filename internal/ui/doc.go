// Package ui provides terminal UI components for the keytune CLI.
//
// Components are built with Lipgloss and, where something has to update in
// place, Bubble Tea. Most follow a "run once and exit" pattern: they render
// output and return without user interaction.
//
//   - Header: command banner showing operation name and parameters
//   - Progress: bar plus one line per sync phase, fed by bulksync events
//   - Result: success, warning and failure boxes
//   - Confirmer: "I AGREE" prompt before factory reset or polling rate writes
//   - WatchModel: interactive live view of the connection lifecycle
//
// SyncRunner ties the first three together for export and import:
//
//	runner := ui.NewSyncRunner(ui.SyncRunnerConfig{
//	    Title:   "Export",
//	    Command: "keytune export board.json",
//	    Phases:  ui.ExportPhases,
//	})
//	report, err := runner.Run(func(onProgress func(bulksync.Progress)) (*bulksync.Report, error) {
//	    opts.OnProgress = onProgress
//	    snap, report, err := bulksync.New(sess, opts).Export(ctx)
//	    ...
//	})
//
// # Logging Integration
//
// Logging is controlled by the KEYTUNE_LOG_LEVEL environment variable. When
// unset, zap logging is silent so the styled output stays clean.
package ui
