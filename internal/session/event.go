package session

import (
	"errors"
	"time"

	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

var ErrNotEstablished = errors.New("association not established")

type EventKind int

const (
	EventFrame EventKind = iota
	EventDrop
	EventReject
	EventInstall
	EventStatus
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventDrop:
		return "drop"
	case EventReject:
		return "reject"
	case EventInstall:
		return "install"
	case EventStatus:
		return "status"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event is one step of a run. Which fields are set depends on Kind.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Attempt int
	// From is the sender of a frame, or the peer that rejected it, installed
	// a key or reported a status.
	From     rsna.Role
	Exchange rsna.Exchange
	Message  int
	Frame    *wifi.EAPOLKeyFrame
	Raw      []byte
	Slot     rsna.KeySlot
	KeyID    uint8
	Status   rsna.Status
	Err      error
}

// Outcome summarizes a run.
type Outcome struct {
	BSSID         wifi.MacAddr
	Client        wifi.MacAddr
	Negotiated    rsne.Negotiated
	Attempts      int
	Established   bool
	Rekeys        int
	FramesSent    int
	FramesDropped int
	Duration      time.Duration
	LastError     error
}
