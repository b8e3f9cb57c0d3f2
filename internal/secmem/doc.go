// Package secmem holds secret material for fincrypt.
//
// Secrets live in memguard locked buffers:
//   - memory is mlocked and surrounded by guard pages
//   - Destroy wipes the bytes before the pages are released
//   - CatchSignal runs a cleanup hook, then wipes every live buffer and exits
//
// A Buffer never renders its contents through fmt or slog, and is meant to be
// passed by pointer. Ownership moves with Move; the source is left destroyed.
//
// SecureDelete overwrites a file before unlinking it. It is best-effort only:
// copy-on-write filesystems, journaling, snapshots and SSD wear levelling can
// all keep older blocks around.
package secmem
