package sclog

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrPipelineClosed  = errors.New("pipeline closed")
	ErrAlreadyWatching = errors.New("already watching")
)

// WatchOp identifies the pipeline stage an error came from.
type WatchOp string

const (
	WatchOpFind    WatchOp = "find"
	WatchOpTail    WatchOp = "tail"
	WatchOpEnrich  WatchOp = "enrich"
	WatchOpDeliver WatchOp = "deliver"
)

// WatchError wraps an error with the stage and path it occurred at.
type WatchError struct {
	Op   WatchOp
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}
