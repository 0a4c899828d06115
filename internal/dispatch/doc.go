// Package dispatch executes IR/RF commands against registered devices.
//
// A Command is either one payload or an ordered sequence of Steps. Each
// dispatch holds the target device's exclusive lock for its whole run,
// timed waits included, so two commands for the same device never
// interleave on the air. Different devices run fully in parallel.
//
// Sequences run under a wall-clock deadline. When it expires no further
// sends are issued and the Outcome reports TimedOut; that is a normal
// result, not an error. Individual send failures are tallied and do not
// stop the sequence, so callers can tell how many pulses landed:
//
//	out, err := d.Dispatch(ctx, "192.168.1.50", dispatch.Command{
//	    Sequence: []dispatch.Step{
//	        {Data: volUp, SendCount: 5, Interval: 300 * time.Millisecond},
//	        {Pause: time.Second},
//	        {Data: input},
//	    },
//	}, 0)
//	// out.Attempted == 6 unless the deadline cut the sequence short
package dispatch
