// Package group implements sending to group chats: the outbound message
// pipeline and image upload negotiation.
//
// # Sending Messages
//
// A Group is created from a Session holding the event bus, the sequence
// resolver and the transport shared by one account:
//
//	g, err := group.New(groupID, "Programming Chat",
//	    group.MemberInfo{ID: selfID, Nick: "bot"},
//	    group.Session{Bus: bus, Resolver: resolver, Transport: tr},
//	    group.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	receipt, err := g.SendMessage(ctx, message.Text("hello"))
//
// SendMessage picks one of three strategies by estimated size and image
// count:
//
//   - Literal: up to 702 units and 2 images, sent as a plain group message
//   - Promoted: up to 5000 units and 50 images, wrapped in a single-node
//     forward bundle from the own member
//   - Rejected: anything larger fails with *MessageTooLargeError
//
// A literal send refused by the server as oversized is retried once as a
// bundle. A failed retry is reported as *InternalSendError.
//
// # Events
//
// Every send broadcasts *MessageSendEvent first. Listeners may replace its
// Message or cancel it. *MessagePostSendEvent reports the outcome. Image
// uploads broadcast *BeforeImageUploadEvent, then *ImageUploadSucceedEvent
// or *ImageUploadFailedEvent. All of them implement Event.
//
// # Sequence Ids
//
// The server assigns sequence ids asynchronously. After a successful send
// the pipeline waits up to Options.SequenceTimeout for the id; a timeout is
// logged and the receipt is returned regardless.
package group
