package room

import (
	"context"
	"encoding/json"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/network"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// Notifier pushes every match event to the sessions in the match's room.
type Notifier struct {
	broadcaster Broadcaster
}

func NewNotifier(b Broadcaster) *Notifier {
	return &Notifier{broadcaster: b}
}

// HandleEvent implements match.Subscriber. Delivery failures are logged
// and never fail the match operation.
func (n *Notifier) HandleEvent(ctx context.Context, ev match.Event) error {
	matchID := ev.EventMatchID()
	data, err := json.Marshal(network.EventMessage{
		MatchID: matchID,
		Event:   ev.EventName(),
		Data:    ev,
	})
	if err != nil {
		return err
	}
	if err := n.broadcaster.BroadcastToRoom(matchID, network.MsgTypeMatchEvent, data); err != nil {
		logger.Log.Warnw("broadcast match event failed", "match_id", matchID, "event", ev.EventName(), "error", err)
	}
	return nil
}
