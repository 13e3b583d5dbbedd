package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common errors shared across services.
var (
	// ErrNotFound indicates a requested file or entry is absent.
	ErrNotFound = errors.New("not found")

	// ErrNoVideos indicates indexing found no playable videos.
	ErrNoVideos = errors.New("no videos found in configured directories")

	// ErrQueueEmpty indicates the preprocessed queue has no valid artifact.
	ErrQueueEmpty = errors.New("preprocessed queue is empty")

	// ErrFillInProgress indicates a queue fill is already running.
	ErrFillInProgress = errors.New("queue fill already in progress")

	// ErrArtifactMissing indicates a processed artifact file no longer exists.
	ErrArtifactMissing = errors.New("processed artifact file missing")

	// ErrArtifactTooSmall indicates transcoder output below the plausible minimum.
	ErrArtifactTooSmall = errors.New("processed artifact below minimum size")

	// ErrIncompatibleAudio indicates the audio filter chain was rejected by FFmpeg.
	ErrIncompatibleAudio = errors.New("audio filter chain rejected")

	// ErrProbeFailed indicates metadata probing failed.
	ErrProbeFailed = errors.New("media probe failed")

	// ErrSourceMissing indicates the original video file no longer exists.
	ErrSourceMissing = errors.New("original video file missing")

	// ErrInitializationFailed indicates initialization exhausted its attempts.
	ErrInitializationFailed = errors.New("initialization failed after all attempts")

	// ErrSnapshotHashMismatch indicates a persisted snapshot was written under a
	// different configuration and must be discarded.
	ErrSnapshotHashMismatch = errors.New("snapshot config hash mismatch")
)
