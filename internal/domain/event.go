package domain

import "encoding/json"

// ChangeOp is the row-level operation carried by a change event.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Entity names the table a change event refers to.
type Entity string

const (
	EntityChannel  Entity = "channel"
	EntityMessage  Entity = "message"
	EntityReaction Entity = "reaction"
)

// ChangeEvent is the wire format delivered over the change bus. Row
// holds the affected row as JSON; for deletes it carries at least the
// primary key.
type ChangeEvent struct {
	Op     ChangeOp        `json:"op"`
	Entity Entity          `json:"entity"`
	Row    json.RawMessage `json:"row"`
}

// ChannelRow decodes the event row as a Channel.
func (e ChangeEvent) ChannelRow() (Channel, error) {
	var ch Channel
	err := json.Unmarshal(e.Row, &ch)
	return ch, err
}

// MessageRow decodes the event row as a Message.
func (e ChangeEvent) MessageRow() (Message, error) {
	var m Message
	err := json.Unmarshal(e.Row, &m)
	return m, err
}

// ReactionRow decodes the event row as a Reaction.
func (e ChangeEvent) ReactionRow() (Reaction, error) {
	var r Reaction
	err := json.Unmarshal(e.Row, &r)
	return r, err
}
