package ws

import (
	"encoding/json"
	"testing"
)

// Transient events only need the hub, so the dispatcher is wired
// without a chat service or a link-preview fetcher here.
func transientSetup() (*Dispatcher, *Hub, *Client, *Client) {
	hub := NewHub()
	d := NewDispatcher(nil, hub, nil)
	sender := testClient("sender")
	other := testClient("other")
	hub.Attach(sender)
	hub.Attach(other)
	hub.Subscribe("chat:ab-cde-fg", "sender")
	hub.Subscribe("chat:ab-cde-fg", "other")
	return d, hub, sender, other
}

func TestDispatch_NewMessageBroadcastAndAck(t *testing.T) {
	d, _, sender, other := transientSetup()

	raw := []byte(`{"event":"newMessage","ack":1,"data":{"key":"ab-cde-fg","message":{"type":"sticker","message":"pika"}}}`)
	d.dispatch(sender, raw)

	// The sender only gets the ack (the generated message id); the
	// broadcast goes to everyone else.
	senderFrames := drainRaw(sender)
	if len(senderFrames) != 1 {
		t.Fatalf("sender frames = %d, want 1 (ack only)", len(senderFrames))
	}
	var ack struct {
		Ack  *int64 `json:"ack"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(senderFrames[0], &ack); err != nil {
		t.Fatalf("ack frame: %v", err)
	}
	if ack.Ack == nil || *ack.Ack != 1 {
		t.Errorf("ack id = %v, want 1", ack.Ack)
	}
	if ack.Data == "" {
		t.Error("ack did not carry a generated message id")
	}

	otherFrames := drainRaw(other)
	if len(otherFrames) != 1 {
		t.Fatalf("other frames = %d, want 1", len(otherFrames))
	}
	var evt struct {
		Event string `json:"event"`
		Data  struct {
			MessageID string `json:"messageId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(otherFrames[0], &evt); err != nil {
		t.Fatalf("event frame: %v", err)
	}
	if evt.Event != "newMessage" {
		t.Errorf("event = %q, want newMessage", evt.Event)
	}
	if evt.Data.MessageID != ack.Data {
		t.Errorf("broadcast message id %q != acked id %q", evt.Data.MessageID, ack.Data)
	}
}

func TestDispatch_ReactIncludesSender(t *testing.T) {
	d, _, sender, other := transientSetup()

	raw := []byte(`{"event":"react","data":{"messageId":"m1","key":"ab-cde-fg","userId":"u1","react":"❤️"}}`)
	d.dispatch(sender, raw)

	if got := len(drainRaw(sender)); got != 1 {
		t.Errorf("sender frames = %d, want 1 (reactions echo to the actor)", got)
	}
	if got := len(drainRaw(other)); got != 1 {
		t.Errorf("other frames = %d, want 1", got)
	}
}

func TestDispatch_TypingExcludesSender(t *testing.T) {
	d, _, sender, other := transientSetup()

	raw := []byte(`{"event":"typing","data":{"uid":"u1","key":"ab-cde-fg","event":"start"}}`)
	d.dispatch(sender, raw)

	if got := len(drainRaw(sender)); got != 0 {
		t.Errorf("sender frames = %d, want 0", got)
	}
	if got := len(drainRaw(other)); got != 1 {
		t.Errorf("other frames = %d, want 1", got)
	}
}

func TestDispatch_LocationIncludesSenderWithMessageID(t *testing.T) {
	d, _, sender, _ := transientSetup()

	raw := []byte(`{"event":"location","data":{"position":{"latitude":1.5,"longitude":2.5},"key":"ab-cde-fg","uid":"u1"}}`)
	d.dispatch(sender, raw)

	frames := drainRaw(sender)
	if len(frames) != 1 {
		t.Fatalf("sender frames = %d, want 1", len(frames))
	}
	var evt struct {
		Event string `json:"event"`
		Data  struct {
			MessageID string `json:"messageId"`
			UID       string `json:"uid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(frames[0], &evt); err != nil {
		t.Fatalf("event frame: %v", err)
	}
	if evt.Data.MessageID == "" {
		t.Error("location broadcast missing generated message id")
	}
}

func TestDispatch_MalformedFrameIsIgnored(t *testing.T) {
	d, _, sender, other := transientSetup()

	d.dispatch(sender, []byte(`{not json`))
	d.dispatch(sender, []byte(`{"event":"react","data":"not-an-object"}`))
	d.dispatch(sender, []byte(`{"event":"unknownEvent","data":{}}`))

	if got := len(drainRaw(other)); got != 0 {
		t.Errorf("malformed frames produced %d broadcasts, want 0", got)
	}
}

func TestClient_SessionStateTransitions(t *testing.T) {
	c := testClient("c1")

	state, _, _, _ := c.session()
	if state != StateUnattached {
		t.Fatalf("initial state = %v, want Unattached", state)
	}

	c.setWaiting("ab-cde-fg")
	state, key, _, _ := c.session()
	if state != StateWaiting || key != "ab-cde-fg" {
		t.Errorf("after setWaiting: state=%v key=%q", state, key)
	}

	c.setAdmitted("ab-cde-fg", "u1", "alice")
	state, key, uid, name := c.session()
	if state != StateAdmitted || key != "ab-cde-fg" || uid != "u1" || name != "alice" {
		t.Errorf("after setAdmitted: state=%v key=%q uid=%q name=%q", state, key, uid, name)
	}

	c.setUnattached()
	state, key, uid, _ = c.session()
	if state != StateUnattached || key != "" || uid != "" {
		t.Errorf("after setUnattached: state=%v key=%q uid=%q", state, key, uid)
	}
}

func drainRaw(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case b := <-c.send:
			frames = append(frames, b)
		default:
			return frames
		}
	}
}
