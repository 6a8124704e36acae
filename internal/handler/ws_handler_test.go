package handler

import (
	"encoding/json"
	"testing"

	"channel-service/internal/domain"

	"github.com/google/uuid"
)

func messageEvent(t *testing.T, op domain.ChangeOp, msg domain.Message) domain.ChangeEvent {
	t.Helper()
	row, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message row: %v", err)
	}
	return domain.ChangeEvent{Op: op, Entity: domain.EntityMessage, Row: row}
}

func reactionEvent(t *testing.T, op domain.ChangeOp, reaction domain.Reaction) domain.ChangeEvent {
	t.Helper()
	row, err := json.Marshal(reaction)
	if err != nil {
		t.Fatalf("marshal reaction row: %v", err)
	}
	return domain.ChangeEvent{Op: op, Entity: domain.EntityReaction, Row: row}
}

func TestEventToFrameMessageInsert(t *testing.T) {
	channelID := uuid.New()
	msg := domain.Message{ID: uuid.New(), ChannelID: channelID, UserID: uuid.New(), Content: "hello"}

	frame, ok := eventToFrame(channelID, messageEvent(t, domain.OpInsert, msg))
	if !ok {
		t.Fatalf("insert event should produce a frame")
	}
	if frame.Type != "MESSAGE_NEW" {
		t.Fatalf("expected MESSAGE_NEW, got %s", frame.Type)
	}
	if frame.Message == nil || frame.Message.Content != "hello" {
		t.Fatalf("frame should carry the message body")
	}
	if frame.MessageID != msg.ID.String() {
		t.Fatalf("frame should carry the message id")
	}
}

func TestEventToFrameMessageDelete(t *testing.T) {
	channelID := uuid.New()
	msg := domain.Message{ID: uuid.New(), ChannelID: channelID}

	frame, ok := eventToFrame(channelID, messageEvent(t, domain.OpDelete, msg))
	if !ok {
		t.Fatalf("delete event should produce a frame")
	}
	if frame.Type != "MESSAGE_DELETED" {
		t.Fatalf("expected MESSAGE_DELETED, got %s", frame.Type)
	}
	if frame.Message != nil {
		t.Fatalf("delete frame should not carry a message body")
	}
}

func TestEventToFrameReactions(t *testing.T) {
	channelID := uuid.New()
	reaction := domain.Reaction{ID: uuid.New(), MessageID: uuid.New(), UserID: uuid.New(), Emoji: "👍"}

	frame, ok := eventToFrame(channelID, reactionEvent(t, domain.OpInsert, reaction))
	if !ok || frame.Type != "REACTION_ADDED" {
		t.Fatalf("expected REACTION_ADDED, got %+v", frame)
	}
	if frame.Reaction == nil || frame.Reaction.Emoji != "👍" {
		t.Fatalf("added frame should carry the reaction")
	}

	frame, ok = eventToFrame(channelID, reactionEvent(t, domain.OpDelete, reaction))
	if !ok || frame.Type != "REACTION_REMOVED" {
		t.Fatalf("expected REACTION_REMOVED, got %+v", frame)
	}
	if frame.Emoji != "👍" {
		t.Fatalf("removed frame should name the emoji")
	}
	if frame.MessageID != reaction.MessageID.String() {
		t.Fatalf("removed frame should carry the message id")
	}
}

func TestEventToFrameIgnoresChannelEntity(t *testing.T) {
	channelID := uuid.New()
	row, _ := json.Marshal(domain.Channel{ID: channelID})
	event := domain.ChangeEvent{Op: domain.OpInsert, Entity: domain.EntityChannel, Row: row}

	if _, ok := eventToFrame(channelID, event); ok {
		t.Fatalf("channel events do not belong on the channel socket")
	}
}
