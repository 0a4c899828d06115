// Package learning runs IR and RF code capture sessions.
//
// A Controller owns at most one Session at a time. Starting a session
// resolves the target device synchronously, so "not found" and
// "unsupported" are reported before any transport call. Everything after
// that runs on the session's own goroutine while holding the device lock:
//
//	IR:  idle → armed → polling → captured | timed_out | canceled
//	RF:  idle → sweeping → locked → armed → polling → captured | timed_out
//	     idle → sweeping → sweep_timed_out
//	     idle → armed → polling → ...            (frequency supplied)
//
// Every session ends by invoking Request.OnFinished exactly once, whatever
// the terminal state. Every wait is a cancelable delay, so Cancel releases
// the device lock promptly. Timeouts and cancellation tell the device to
// disarm so it does not stay in learning mode.
package learning
