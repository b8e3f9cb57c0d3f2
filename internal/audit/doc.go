// Package audit records store lifecycle events.
//
// Events are written as JSON lines, one per create, open, save, close or
// rekey attempt. Events carry the container path, a session ID and the
// outcome; they never carry key material or payload bytes. Failed opens are
// recorded without saying whether the passphrase or the file was at fault.
package audit
