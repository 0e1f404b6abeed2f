package model

import "github.com/Avi18971911/xray_forwarder/internal/xray/model"

type TraceResult struct {
	Trace *model.Trace
	Error error
}
