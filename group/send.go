package group

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/limits"
	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/transport"
)

// maxRegisterAttempts bounds retries when a generated random collides with a
// pending one.
const maxRegisterAttempts = 8

// SendMessage sends chain to the group.
//
// Chains up to limits.MaxLiteralWeight with at most limits.MaxLiteralImages
// images are sent literally. Larger chains, up to limits.MaxMessageWeight and
// limits.MaxMessageImages, are sent as a single-node forward bundle. Anything
// larger fails with a *MessageTooLargeError. A chain holding a
// *message.ForwardMessage is sent as that bundle without a MessageSendEvent.
//
// A sequence id that does not resolve within Options.SequenceTimeout is
// logged and the receipt is still returned.
func (g *Group) SendMessage(ctx context.Context, chain message.Chain) (*Receipt, error) {
	if chain.IsContentEmpty() {
		return nil, ErrEmptyMessage
	}
	if g.self.IsMuted() {
		sendFailures.WithLabelValues("muted").Inc()
		return nil, fmt.Errorf("%w: %s remaining", ErrSenderMuted, g.self.MuteRemaining())
	}

	ctx, cancel, err := g.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	receipt, err := g.sendChain(ctx, chain)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"function": "SendMessage",
			"group_id": g.id,
			"error":    err.Error(),
		}).Debug("Group message not sent")
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"function": "SendMessage",
		"group_id": g.id,
		"forward":  receipt.Forward,
		"content":  chain.Preview(20),
	}).Info("Group message sent")
	return receipt, nil
}

// SendForward sends a forward bundle to the group.
func (g *Group) SendForward(ctx context.Context, fwd *message.ForwardMessage) (*Receipt, error) {
	return g.SendMessage(ctx, message.NewChain(fwd))
}

func (g *Group) sendChain(ctx context.Context, chain message.Chain) (*Receipt, error) {
	if fwd, ok := chain.Forward(); ok {
		if chain.Len() != 1 {
			sendFailures.WithLabelValues("forward_not_standalone").Inc()
			return nil, ErrForwardNotStandalone
		}
		return g.sendBundle(ctx, chain, fwd, pathForward)
	}

	ev := event.Broadcast(ctx, g.bus, &MessageSendEvent{
		groupEvent: groupEvent{group: g},
		Message:    chain,
	})
	if ev.IsCancelled() {
		sendFailures.WithLabelValues("cancelled").Inc()
		return nil, ErrSendCancelled
	}
	msg := ev.Message

	weight := msg.EstimateLength(g.opts.Weights, limits.EstimateCap)
	images := msg.CountImages()

	switch limits.Classify(weight, images) {
	case limits.StrategyReject:
		sendFailures.WithLabelValues("too_large").Inc()
		return nil, &MessageTooLargeError{Original: chain, Final: msg, Weight: weight, Images: images}
	case limits.StrategyPromote:
		g.logger.WithFields(logrus.Fields{
			"function": "sendChain",
			"group_id": g.id,
			"weight":   weight,
			"images":   images,
		}).Debug("Promoting message to forward bundle")
		return g.sendBundle(ctx, msg, g.selfBundle(msg), pathPromoted)
	}

	return g.sendLiteral(ctx, msg)
}

// selfBundle wraps chain as a single forward node sent by the own member.
func (g *Group) selfBundle(chain message.Chain) *message.ForwardMessage {
	return &message.ForwardMessage{Nodes: []message.ForwardNode{{
		SenderID:   g.self.ID,
		SenderName: g.self.Nick,
		Time:       g.now(),
		Message:    chain,
	}}}
}

func (g *Group) sendLiteral(ctx context.Context, msg message.Chain) (*Receipt, error) {
	g.awaitQuote(ctx, msg)

	random, handle, err := g.register()
	if err != nil {
		return nil, err
	}

	resp, err := g.transport.SendGroupMessage(ctx, &transport.Envelope{
		GroupID:  g.id,
		SenderID: g.self.ID,
		Chain:    msg,
		Random:   random,
		Sequence: handle,
	})
	if err != nil {
		g.resolver.Forget(random)
		sendFailures.WithLabelValues("transport").Inc()
		err = fmt.Errorf("send group message: %w", err)
		g.postSend(ctx, msg, nil, err)
		return nil, err
	}

	switch resp.Code {
	case transport.ResultOK:
	case transport.ResultMuted:
		g.resolver.Forget(random)
		sendFailures.WithLabelValues("muted").Inc()
		g.postSend(ctx, msg, nil, ErrSenderMuted)
		return nil, ErrSenderMuted
	case transport.ResultOversized:
		g.resolver.Forget(random)
		g.logger.WithFields(logrus.Fields{
			"function": "sendLiteral",
			"group_id": g.id,
			"code":     resp.Code,
		}).Debug("Server refused literal form, retrying as forward bundle")

		receipt, retryErr := g.sendBundle(ctx, msg, g.selfBundle(msg), pathRetry)
		if retryErr != nil {
			sendFailures.WithLabelValues("internal").Inc()
			return nil, &InternalSendError{Code: resp.Code, Err: retryErr}
		}
		return receipt, nil
	default:
		g.resolver.Forget(random)
		sendFailures.WithLabelValues("rejected").Inc()
		rejected := &SendRejectedError{Code: resp.Code, Message: resp.Message}
		g.postSend(ctx, msg, nil, rejected)
		return nil, rejected
	}

	sent := resp.Time
	if sent.IsZero() {
		sent = g.now()
	}
	source := &message.Source{
		GroupID:  g.id,
		SenderID: g.self.ID,
		Random:   random,
		Time:     sent,
		Chain:    msg,
		Sequence: handle,
	}
	g.awaitSequence(ctx, source)

	messagesSent.WithLabelValues(pathLiteral).Inc()
	receipt := &Receipt{Source: source, Group: g, Sender: g.self}
	g.postSend(ctx, msg, receipt, nil)
	return receipt, nil
}

// sendBundle posts fwd. chain is the message the caller asked to send and
// is used for the post-send event only.
func (g *Group) sendBundle(ctx context.Context, chain message.Chain, fwd *message.ForwardMessage, path string) (*Receipt, error) {
	if err := limits.ValidateForwardNodes(len(fwd.Nodes)); err != nil {
		if errors.Is(err, limits.ErrMessageEmpty) {
			return nil, ErrEmptyMessage
		}
		sendFailures.WithLabelValues("bundle_too_large").Inc()
		return nil, fmt.Errorf("%w: %w", ErrBundleTooLarge, err)
	}

	random, handle, err := g.register()
	if err != nil {
		return nil, err
	}

	source, err := g.transport.SendGroupBundle(ctx, &transport.BundleRequest{
		GroupID:    g.id,
		SenderID:   g.self.ID,
		SenderName: g.self.Nick,
		Forward:    fwd,
		Random:     random,
		Sequence:   handle,
	})
	if err != nil {
		g.resolver.Forget(random)
		sendFailures.WithLabelValues("transport").Inc()
		err = fmt.Errorf("send forward bundle: %w", err)
		g.postSend(ctx, chain, nil, err)
		return nil, err
	}

	source = g.normalizeBundleSource(source, fwd, random, handle)
	if source.Sequence == handle {
		g.awaitSequence(ctx, source)
	} else {
		g.resolver.Forget(random)
	}

	messagesSent.WithLabelValues(path).Inc()
	receipt := &Receipt{Source: source, Group: g, Sender: g.self, Forward: true}
	g.postSend(ctx, chain, receipt, nil)
	return receipt, nil
}

// normalizeBundleSource fills the fields a transport may leave unset.
func (g *Group) normalizeBundleSource(src *message.Source, fwd *message.ForwardMessage, random uint32, handle *sequence.Handle) *message.Source {
	out := message.Source{}
	if src != nil {
		out = *src
	}
	if out.GroupID == 0 {
		out.GroupID = g.id
	}
	if out.SenderID == 0 {
		out.SenderID = g.self.ID
	}
	if out.Random == 0 {
		out.Random = random
	}
	if out.Time.IsZero() {
		out.Time = g.now()
	}
	if out.Chain.IsEmpty() {
		out.Chain = message.NewChain(fwd)
	}
	if out.Sequence == nil {
		out.Sequence = handle
	}
	return &out
}

// register allocates a random and a pending handle for it.
func (g *Group) register() (uint32, *sequence.Handle, error) {
	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		random, err := newRandom()
		if err != nil {
			return 0, nil, fmt.Errorf("generate message random: %w", err)
		}
		handle, err := g.resolver.Register(random)
		if err == nil {
			return random, handle, nil
		}
		if !errors.Is(err, sequence.ErrDuplicateRandom) {
			return 0, nil, err
		}
	}
	return 0, nil, fmt.Errorf("register message random: %w", sequence.ErrDuplicateRandom)
}

func newRandom() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// awaitSequence waits for the source's sequence id. Failure is logged only.
func (g *Group) awaitSequence(ctx context.Context, source *message.Source) {
	_, err := g.resolver.Await(ctx, source.Sequence, g.opts.SequenceTimeout)
	if err == nil {
		return
	}

	fields := logrus.Fields{
		"function": "awaitSequence",
		"group_id": g.id,
		"random":   source.Random,
		"content":  source.Chain.Preview(10),
		"error":    err.Error(),
	}
	if errors.Is(err, sequence.ErrTimedOut) {
		sequenceTimeouts.Inc()
		g.logger.WithFields(fields).Warn("Timeout awaiting sequence id for group message, some features may not work properly")
		return
	}

	// The message is delivered; only correlation is lost.
	g.resolver.Forget(source.Random)
	g.logger.WithFields(fields).Debug("Stopped awaiting sequence id")
}

// awaitQuote waits for a quoted message's sequence id so the quote can
// reference it. The quoted handle belongs to another send and is never
// completed here.
func (g *Group) awaitQuote(ctx context.Context, msg message.Chain) {
	quote, ok := msg.Quote()
	if !ok || quote.Source == nil || quote.Source.Sequence == nil {
		return
	}
	if quote.Source.Sequence.State() != sequence.StatePending {
		return
	}

	if _, err := g.resolver.Wait(ctx, quote.Source.Sequence, g.opts.QuoteTimeout); err != nil {
		g.logger.WithFields(logrus.Fields{
			"function": "awaitQuote",
			"group_id": g.id,
			"random":   quote.Source.Random,
			"error":    err.Error(),
		}).Warn("Quoted message has no sequence id, sending anyway")
	}
}

func (g *Group) postSend(ctx context.Context, msg message.Chain, receipt *Receipt, err error) {
	event.Broadcast(ctx, g.bus, &MessagePostSendEvent{
		groupEvent: groupEvent{group: g},
		Message:    msg,
		Receipt:    receipt,
		Err:        err,
	})
}
