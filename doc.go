// Package groupchat is the client facade for sending to group chats.
//
// A Client owns the session scope of one account: the event bus, the
// sequence-id resolver, the transport and the table of known groups.
// Cancelling the context passed to New, or calling Close, closes the bus,
// completes every listener and closes the transport.
//
// # Getting Started
//
// Connect from a YAML configuration file:
//
//	cfg, err := config.Load("groupchat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := groupchat.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	g, err := client.AddGroup(123456, "Programming Chat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	receipt, err := g.SendMessage(ctx, message.Text("hello"))
//
// # Observing Activity
//
// Listeners subscribe on the client's bus. Subscribing with an interface
// type observes a whole event family:
//
//	event.SubscribeAlways(client.Bus(), func(ctx context.Context, ev *group.MessageSendEvent) error {
//	    ev.Message = ev.Message.Plus(message.PlainText{Content: " [bot]"})
//	    return nil
//	})
//
//	event.SubscribeAlways(client.Bus(), func(ctx context.Context, ev group.Event) error {
//	    log.Printf("%T in %s", ev, ev.Group())
//	    return nil
//	}, event.WithPriority(event.PriorityMonitor))
//
// # Core Types
//
//   - [Client]: the session scope
//   - [Options]: configuration for [New]
//
// The send pipeline lives in package group, the bus in package event and the
// network contract in package transport.
package groupchat
