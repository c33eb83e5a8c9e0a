package result

import (
	"encoding/json"
	"time"

	"github.com/wifibear/rsn/internal/session"
)

const (
	KindSimulate = "simulate"
	KindCheck    = "check"
)

// Result records one simulated association or one offline capture check.
type Result struct {
	Kind        string    `json:"kind"`
	BSSID       string    `json:"bssid"`
	Client      string    `json:"client"`
	SSID        string    `json:"ssid"`
	AKM         string    `json:"akm,omitempty"`
	Pairwise    string    `json:"pairwise,omitempty"`
	Group       string    `json:"group,omitempty"`
	Established bool      `json:"established"`
	Attempts    int       `json:"attempts,omitempty"`
	Rekeys      int       `json:"rekeys,omitempty"`
	Frames      int       `json:"frames,omitempty"`
	Dropped     int       `json:"dropped,omitempty"`
	Error       string    `json:"error,omitempty"`
	CaptureFile string    `json:"capture_file,omitempty"`
	Duration    Duration  `json:"duration,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FromOutcome converts a finished session run.
func FromOutcome(ssid string, out *session.Outcome, err error) *Result {
	r := &Result{
		Kind:        KindSimulate,
		BSSID:       out.BSSID.String(),
		Client:      out.Client.String(),
		SSID:        ssid,
		AKM:         out.Negotiated.Akm.String(),
		Pairwise:    out.Negotiated.PairwiseCipher.String(),
		Group:       out.Negotiated.GroupCipher.String(),
		Established: out.Established,
		Attempts:    out.Attempts,
		Rekeys:      out.Rekeys,
		Frames:      out.FramesSent,
		Dropped:     out.FramesDropped,
		Duration:    Duration(out.Duration),
		Timestamp:   time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Duration wraps time.Duration for JSON serialization.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).Round(time.Microsecond).String()
}

// OK reports whether the run established keys, or the check matched.
func (r *Result) OK() bool {
	return r.Established && r.Error == ""
}
