// Package process supervises the iotlink agent as a child process.
//
// An administrative reset makes the agent exit with ExitCodeRestart; the
// supervisor starts it again immediately. Other non-zero exits are
// restarted after a delay, up to a limit of consecutive failures.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.DefaultConfig("iotlink", exe, args))
//	sup.SetLogger(log)
//	if err := sup.Run(ctx); err != nil {
//	    return err
//	}
package process
