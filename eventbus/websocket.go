package eventbus

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a WebSocket and pumps every Event published for
// swapID to the client until the connection closes (spec §4.9, §6).
func (b *Bus) ServeWS(w http.ResponseWriter, r *http.Request, swapID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, cancel := b.Subscribe(swapID)
	defer cancel()

	for evt := range ch {
		payload, err := json.Marshal(evt)
		if err != nil {
			log.Errorf("eventbus: unable to marshal event for swap %s: %v", swapID, err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
	}
	return nil
}
