// Package hub fans channel records out to every connected panel using
// the channel-based register/unregister/broadcast pattern.
package hub

import "github.com/teslashibe/go-gazepanel/pkg/protocol"

// Message is one encoded channel record.
type Message struct {
	Type protocol.MessageType
	Data []byte
}

// NewMessage encodes an event for broadcast.
func NewMessage(e protocol.Event) (Message, error) {
	data, err := protocol.Encode(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: e.Type(), Data: data}, nil
}
