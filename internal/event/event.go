package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	UnitStarted Type = iota + 1
	UnitPrepared
	UnitCompleted
	UnitFailed
	RangeShort
	VerifyOK
	VerifyFailed
	UnitFinished
)

var typeNames = [...]string{
	UnitStarted:   "UnitStarted",
	UnitPrepared:  "UnitPrepared",
	UnitCompleted: "UnitCompleted",
	UnitFailed:    "UnitFailed",
	RangeShort:    "RangeShort",
	VerifyOK:      "VerifyOK",
	VerifyFailed:  "VerifyFailed",
	UnitFinished:  "UnitFinished",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the harness.
type Event struct {
	Type      Type
	Timestamp time.Time
	Unit      string // work unit ID
	Seq       int    // dispatch number within the unit
	Index     int    // range index for range-level events, else -1
	Ranges    int    // ranges in the batch
	Bytes     int64  // bytes completed
	Latency   time.Duration
	Method    string
	Error     error
}
