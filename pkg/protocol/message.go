// Package protocol defines the wire schema shared by the panel and the
// edge server: the event records pushed over the WebSocket channel and
// the JSON bodies of the HTTP endpoints.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/go-gazepanel/pkg/geom"
)

// MessageType is the `type` discriminator of a channel record.
type MessageType string

const (
	TypeGaze           MessageType = "gaze"           // Pointer update
	TypeDwell          MessageType = "dwell"          // Dwell progress
	TypeClick          MessageType = "click"          // Gaze click detected
	TypeRecommendation MessageType = "recommendation" // Recommendation notice

	// TypeSnapshot is never sent on the wire. Records with any other type,
	// or none, are full state snapshots.
	TypeSnapshot MessageType = "snapshot"
)

// ErrMalformed is returned by Decode for records that cannot be parsed.
var ErrMalformed = errors.New("protocol: malformed record")

// Event is one decoded channel record. The set of implementations is
// closed; use Dispatch to handle every kind.
type Event interface {
	Type() MessageType
	isEvent()
}

// GazeEvent moves the gaze pointer. A nil Position means no gaze was
// detected.
type GazeEvent struct {
	Position *geom.Point `json:"position"`
}

// DwellEvent reports server-side dwell progress at a position.
type DwellEvent struct {
	Position *geom.Point `json:"position"`
	Progress float64     `json:"progress"` // 0..1
}

// ClickEvent reports a gaze click, optionally on a device.
type ClickEvent struct {
	Position   *geom.Point `json:"position"`
	DeviceID   string      `json:"device_id,omitempty"`
	DeviceName string      `json:"device_name,omitempty"`
	Method     string      `json:"method,omitempty"` // "dwell", "blink"
}

// RecommendationEvent carries a recommendation notice.
type RecommendationEvent struct {
	Recommendation Recommendation `json:"recommendation"`
}

// SnapshotEvent carries a full state snapshot pushed on the channel.
type SnapshotEvent struct {
	Snapshot
}

func (GazeEvent) Type() MessageType           { return TypeGaze }
func (DwellEvent) Type() MessageType          { return TypeDwell }
func (ClickEvent) Type() MessageType          { return TypeClick }
func (RecommendationEvent) Type() MessageType { return TypeRecommendation }
func (SnapshotEvent) Type() MessageType       { return TypeSnapshot }

func (GazeEvent) isEvent()           {}
func (DwellEvent) isEvent()          {}
func (ClickEvent) isEvent()          {}
func (RecommendationEvent) isEvent() {}
func (SnapshotEvent) isEvent()       {}

// Handler receives every kind of event. Adding an event kind adds a
// method here, so every handler must be updated to compile.
type Handler interface {
	HandleGaze(GazeEvent)
	HandleDwell(DwellEvent)
	HandleClick(ClickEvent)
	HandleRecommendation(RecommendationEvent)
	HandleSnapshot(SnapshotEvent)
}

// Dispatch routes e to the matching Handler method.
func Dispatch(e Event, h Handler) {
	switch ev := e.(type) {
	case GazeEvent:
		h.HandleGaze(ev)
	case DwellEvent:
		h.HandleDwell(ev)
	case ClickEvent:
		h.HandleClick(ev)
	case RecommendationEvent:
		h.HandleRecommendation(ev)
	case SnapshotEvent:
		h.HandleSnapshot(ev)
	default:
		panic(fmt.Sprintf("protocol: unhandled event %T", e))
	}
}

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode parses one channel record.
func Decode(data []byte) (Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformed
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeGaze:
		var g GazeEvent
		err = json.Unmarshal(data, &g)
		ev = g
	case TypeDwell:
		var d DwellEvent
		err = json.Unmarshal(data, &d)
		ev = d
	case TypeClick:
		var c ClickEvent
		err = json.Unmarshal(data, &c)
		ev = c
	case TypeRecommendation:
		var r RecommendationEvent
		err = json.Unmarshal(data, &r)
		ev = r
	default:
		var s SnapshotEvent
		err = json.Unmarshal(data, &s.Snapshot)
		ev = s
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

// Encode serializes an event as a channel record.
func Encode(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case GazeEvent:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			GazeEvent
		}{TypeGaze, ev})
	case DwellEvent:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			DwellEvent
		}{TypeDwell, ev})
	case ClickEvent:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			ClickEvent
		}{TypeClick, ev})
	case RecommendationEvent:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			RecommendationEvent
		}{TypeRecommendation, ev})
	case SnapshotEvent:
		return json.Marshal(ev.Snapshot)
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", e)
	}
}
