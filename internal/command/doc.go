// Package command sends control commands to devices and waits for their
// acknowledgement.
//
// Publisher encodes a Command as {"device":…,"status":…} and publishes it on
// the control topic. Service wraps a Publisher and the correlator: it
// registers a pending request, publishes, and blocks until the device reports
// its new status on the status topic or the deadline passes. Issue never
// returns an error; every outcome is reported as a Result.
//
//	svc := command.NewService(corr, command.NewPublisher(client, topics.Control(), 1))
//	res := svc.Issue(ctx, command.Command{Device: "led1", Status: "on"})
//	if !res.Success {
//	    log.Warn("control failed", "message", res.Message)
//	}
package command
