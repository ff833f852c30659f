package esplora_source

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const pingInterval = 30 * time.Second

// watchChainTip subscribes to new blocks over the given websocket endpoint
// and invokes the callback with every new tip height. The returned closer
// tears down the connection and stops the read loop.
func watchChainTip(wsURL string, onTip func(height uint64)) (func(), error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}

	sub := map[string]interface{}{
		"action": "want",
		"data":   []string{"blocks"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}

	quitCh := make(chan struct{})
	go keepAlive(conn, quitCh)
	go listen(conn, onTip)

	return func() {
		close(quitCh)
		conn.Close()
	}, nil
}

func listen(conn *websocket.Conn, onTip func(height uint64)) {
	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, net.ErrClosed) ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.WithError(err).Warn("chain source: ws read failed")
			return
		}

		var msg wsMsg
		if err := json.Unmarshal(buf, &msg); err != nil {
			continue
		}
		if msg.Block != nil && msg.Block.Height > 0 {
			onTip(msg.Block.Height)
		}
	}
}

func keepAlive(conn *websocket.Conn, quitCh chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quitCh:
			return
		case <-ticker.C:
			//nolint
			conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}
