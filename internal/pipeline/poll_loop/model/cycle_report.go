package model

import "github.com/Avi18971911/xray_forwarder/internal/xray/model"

// CycleReport summarizes one poll cycle. Err is set when the cycle was abandoned.
type CycleReport struct {
	Window   model.TimeWindow
	Found    int
	Traces   int
	Segments int
	Sent     int
	Skipped  int
	Failed   int
	Err      error
}
