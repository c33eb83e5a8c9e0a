package wifi

// FourWayHandshake collects the frames of one captured 4-Way Handshake
// between an access point and a station.
type FourWayHandshake struct {
	BSSID     MacAddr
	ClientMAC MacAddr
	Messages  [4]*EAPOLKeyFrame
	RawFrames [4][]byte

	// pending is a Message 1 with a new ANonce seen after a usable pair.
	pending    *EAPOLKeyFrame
	pendingRaw []byte
}

func NewFourWayHandshake(bssid, client MacAddr) *FourWayHandshake {
	return &FourWayHandshake{BSSID: bssid, ClientMAC: client}
}

// AddMessage records frame as message msg. A Message 1 with a new ANonce
// starts a new attempt. While the current attempt holds Messages 1 and 2,
// the new one only replaces it once its own Message 2 arrives, and its
// Messages 3 and 4 are ignored until then.
func (h *FourWayHandshake) AddMessage(msg HandshakeMessage, frame *EAPOLKeyFrame, raw []byte) {
	idx := int(msg) - 1
	if idx < 0 || idx > 3 {
		return
	}
	newAttempt := msg == HandshakeMsg1 && h.Messages[0] != nil && h.Messages[0].Nonce != frame.Nonce
	switch {
	case newAttempt && h.HasMinimumFrames():
		h.pending, h.pendingRaw = frame, append([]byte(nil), raw...)
		return
	case newAttempt:
		h.reset()
	case msg == HandshakeMsg2 && h.pending != nil:
		h.reset()
		h.Messages[0], h.RawFrames[0] = h.pending, h.pendingRaw
		h.pending, h.pendingRaw = nil, nil
	case h.pending != nil && msg != HandshakeMsg1:
		return
	}
	h.Messages[idx] = frame
	h.RawFrames[idx] = append([]byte(nil), raw...)
}

func (h *FourWayHandshake) reset() {
	h.Messages = [4]*EAPOLKeyFrame{}
	h.RawFrames = [4][]byte{}
}

// HasMinimumFrames reports whether Message 1 (ANonce) and Message 2 (SNonce
// and MIC) are both present, which is enough to verify a passphrase.
func (h *FourWayHandshake) HasMinimumFrames() bool {
	return h.Messages[0] != nil && h.Messages[1] != nil
}

// Complete reports whether all four messages were captured.
func (h *FourWayHandshake) Complete() bool {
	return h.MessageCount() == 4
}

func (h *FourWayHandshake) MessageCount() int {
	count := 0
	for _, m := range h.Messages {
		if m != nil {
			count++
		}
	}
	return count
}

func (h *FourWayHandshake) ANonce() [32]byte {
	if h.Messages[0] != nil {
		return h.Messages[0].Nonce
	}
	return [32]byte{}
}

func (h *FourWayHandshake) SNonce() [32]byte {
	if h.Messages[1] != nil {
		return h.Messages[1].Nonce
	}
	return [32]byte{}
}
