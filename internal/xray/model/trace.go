package model

type Trace struct {
	ID       string
	Segments []Segment
}

// Segment is one unit of work within a trace. Document holds the raw JSON
// as returned by the backend and is nil when the backend omitted it.
type Segment struct {
	ID       string
	Document *string
}
