// Package wsclient is the client side of the chat relay: a reconnection
// controller that dials the server, surfaces connection status and retries
// abnormal closures with capped exponential backoff.
//
//	ctl := wsclient.New("ws://localhost:8080/ws",
//	    wsclient.OnState(func(s wsclient.State, reason error) {
//	        fmt.Println("status:", s.Status())
//	    }),
//	    wsclient.OnEvent(func(e protocol.Event) {
//	        fmt.Println(e.Name+":", e.Text)
//	    }),
//	)
//	defer ctl.Close()
//	ctl.Start()
//
// After MaxAttempts automatic retries the controller stays closed and
// GaveUp reports true until Reconnect is called.
package wsclient
