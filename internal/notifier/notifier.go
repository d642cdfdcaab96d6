// Package notifier tells operators about receipts waiting for review by
// publishing nostr notes.
package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/zenfi/core/internal/records"
)

const receiptTag = "zenfi-receipt"

var DefaultRelays = []string{"wss://nostr.mutinywallet.com"}

func New(nsec string, relayURLs []string) (*Notifier, error) {
	prefix, sk, err := nip19.Decode(nsec)
	if err != nil {
		return nil, fmt.Errorf("nip19 decode: %w", err)
	}
	privateKey, ok := sk.(string)
	if prefix != "nsec" || !ok {
		return nil, fmt.Errorf("nip19 decode: not a private key")
	}

	pubkey, err := nostr.GetPublicKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("get pubkey: %w", err)
	}

	if len(relayURLs) == 0 {
		relayURLs = DefaultRelays
	}

	return &Notifier{
		relayURLs:  relayURLs,
		pubkey:     pubkey,
		privateKey: privateKey,
	}, nil
}

type Notifier struct {
	relayURLs          []string
	pubkey, privateKey string
}

// ReceiptUploaded announces a payment whose receipt is ready for review.
func (n *Notifier) ReceiptUploaded(ctx context.Context, p *records.Payment) {
	content := fmt.Sprintf("receipt uploaded for payment %s (%s) by %s: %s",
		p.ID, p.Amount.StringFixed(2), p.UserID, p.ReceiptURL)

	n.Send(ctx, n.newEvent(content, nostr.Tags{
		nostr.Tag{"t", receiptTag},
		nostr.Tag{"d", p.ID},
	}))
}

func (n *Notifier) Send(ctx context.Context, event nostr.Event) {
	for _, url := range n.relayURLs {
		n.publish(ctx, url, event)
	}
}

func (n *Notifier) newEvent(content string, tags nostr.Tags) nostr.Event {
	event := nostr.Event{
		PubKey:    n.pubkey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      tags,
		Content:   content,
	}
	event.Sign(n.privateKey)

	return event
}

func (n *Notifier) publish(ctx context.Context, url string, event nostr.Event) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		log.Printf("err: notifier: connect %v: %v\n", url, err)
		return
	}
	defer relay.Close()

	if _, err := relay.Publish(ctx, event); err != nil {
		log.Printf("err: notifier: publish %v: %v\n", url, err)
	}
}
