package signalhandler

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"
)

// NotifyContext returns a context that is cancelled on SIGINT or SIGTERM.
// The pipeline checks it between files so an interrupted run still leaves a
// consistent index behind.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// GetOptimalProcs returns the default number of decode/hash workers
func GetOptimalProcs() int {
	procs := runtime.NumCPU()
	if procs < 1 {
		procs = 1
	}
	return procs
}
