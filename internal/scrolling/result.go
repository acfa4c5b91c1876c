package scrolling

import (
	"image"
	"time"

	"jordanella.com/regioncap/internal/geometry"
)

// Status of a scrolling capture. Values are ordered by severity.
type Status int

const (
	StatusSuccessful Status = iota
	StatusPartiallySuccessful
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "Successful"
	case StatusPartiallySuccessful:
		return "PartiallySuccessful"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// downgrade returns the worse of s and other; status never improves
func (s Status) downgrade(other Status) Status {
	return max(s, other)
}

// StopReason records why the capture loop ended
type StopReason string

const (
	StopIdenticalFrame  StopReason = "identical_frame"
	StopScrollBarBottom StopReason = "scrollbar_bottom"
	StopNoProgress      StopReason = "no_progress"
	StopFrameLimit      StopReason = "frame_limit"
	StopCancelled       StopReason = "cancelled"
	StopCaptureFailed   StopReason = "capture_failed"
)

// Result of a scrolling capture. Image is nil only when no frame was captured.
type Result struct {
	Image          *image.RGBA
	Status         Status
	FramesCaptured int
	Reason         StopReason
	Duration       time.Duration
}

// Progress is reported after every captured frame
type Progress struct {
	FramesCaptured int
	ResultHeight   int
	Status         Status
	// Frame is the latest raw frame. It must not be modified.
	Frame *image.RGBA
}

// Session summarizes a finished capture for history
type Session struct {
	Region         geometry.PhysicalRect
	Method         ScrollMethod
	FramesCaptured int
	Width          int
	Height         int
	Status         Status
	Reason         StopReason
	StartedAt      time.Time
	Duration       time.Duration
}
