// Package ws implements the server side of the chat relay over WebSocket.
//
// # Components
//
//   - Allocator hands out session ids ("user_N") and default names ("User N")
//   - Registry maps live connections to sessions and owns the online count
//   - Dispatcher serializes an event once and fans it out, optionally
//     skipping one connection
//   - LivenessMonitor pings every connection each interval and evicts the
//     ones that did not answer the previous ping
//   - Hub wires them together and runs the per-connection protocol
//
// # Basic Usage
//
//	hub, err := ws.NewHub(
//	    ws.WithHeartbeatInterval(10*time.Second),
//	    ws.WithLogger(log),
//	    ws.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
//	)
//	if err != nil {
//	    return err
//	}
//	hub.Run()
//
//	r.GET("/ws", func(c *gin.Context) {
//	    _ = hub.HandleUpgrade(c.Writer, c.Request)
//	})
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	hub.Shutdown(ctx)
//
// # Protocol
//
// A new connection first receives a private "welcome" (userId, userName,
// userCount) followed by "connection_ack"; every other connection receives
// "userJoined". Inbound "chat"/"message" frames are relayed as "chat" to
// everyone except the sender. "rename", "changeName" and "init" change the
// display name and, when it actually changed, broadcast "nameChanged" to
// everyone. Malformed frames and unknown types are dropped without closing
// the connection. Exactly one "userLeft" is broadcast per connection,
// whatever ended it.
//
// # Events
//
// Subscribe to lifecycle events; handlers run on the event bus workers:
//
//	hub.Subscribe(ws.EventSessionJoined, func(e ws.Event) {
//	    log.Info("joined", zap.String("session_id", e.Session.ID))
//	})
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Frames from a single
// connection are handled in arrival order.
package ws
