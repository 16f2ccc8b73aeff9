// Package correlator turns fire-and-forget device commands into bounded
// request/response round-trips.
//
// A caller registers interest in a device's next status report with
// CreatePending and waits on the returned Waiter. The status ingest path
// calls Resolve for every status event it sees. Each pending request
// completes exactly once: resolved with the matching event, failed with
// ErrTimeout when its deadline passes, or failed by Cancel or Close.
//
// # Table
//
// Pending requests live in a sharded map keyed by device. Completion always
// goes through an atomic take (remove-and-return under the shard lock), and
// the outcome slot on each entry is itself a compare-and-swap, so a status
// event racing a deadline timer can never complete a waiter twice.
//
// # Superseding
//
// At most one request per device is pending. A second CreatePending for the
// same device replaces the first in the table; the displaced waiter is no
// longer reachable by Resolve and fails with ErrTimeout at its own deadline.
//
// Pending state is in memory only and is lost on restart.
//
// # Usage
//
//	c := correlator.New(correlator.WithTimeout(4 * time.Second))
//	defer c.Close()
//
//	w, err := c.CreatePending("led1")
//	if err != nil {
//	    return err
//	}
//	// publish the command...
//	ev, err := w.Wait(ctx)
package correlator
