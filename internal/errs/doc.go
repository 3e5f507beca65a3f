// Package errs defines the typed error value shared by every keytune layer.
//
// Errors carry a Kind, the failing operation name and an optional cause.
// Callers branch on the Kind with KindOf or the Is* predicates, and the
// package sentinels (ErrNoDevice, ErrBusy, ...) work with errors.Is.
//
// # User-facing output
//
// TroubleshootingHint and ShortMessage turn an error into text for the CLI:
//
//	if err != nil {
//	    fmt.Println(errs.ShortMessage(err))
//	    fmt.Println(errs.TroubleshootingHint(err))
//	}
package errs
