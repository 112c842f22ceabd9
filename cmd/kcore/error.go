package main

import "errors"

// ErrJobsFailed occurs when workload jobs did not complete successfully.
var ErrJobsFailed = errors.New("workload jobs failed")
