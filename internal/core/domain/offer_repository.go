package domain

import (
	"context"
)

const (
	OfferCreated OfferEventType = iota
	OfferSignatureAdded
	OfferReady
	OfferBroadcasting
	OfferRemoved
)

var offerTypeString = map[OfferEventType]string{
	OfferCreated:        "OfferCreated",
	OfferSignatureAdded: "OfferSignatureAdded",
	OfferReady:          "OfferReady",
	OfferBroadcasting:   "OfferBroadcasting",
	OfferRemoved:        "OfferRemoved",
}

type OfferEventType int

func (t OfferEventType) String() string {
	return offerTypeString[t]
}

// OfferEvent holds info about an event occured within the repository.
type OfferEvent struct {
	EventType OfferEventType
	Offer     *Offer
}

// OfferRepository is the abstraction for any kind of database intended to
// persist spend offers.
type OfferRepository interface {
	// AddOffer adds the given offer to the repository by preventing
	// duplicates. Generates an OfferCreated event if successfull.
	AddOffer(ctx context.Context, offer *Offer) (bool, error)
	// GetOffer returns the offer identified by its id, or an error if not
	// found.
	GetOffer(ctx context.Context, id string) (*Offer, error)
	// GetAllOffers returns all pending offers.
	GetAllOffers(ctx context.Context) ([]*Offer, error)
	// UpdateOffer applies updateFn to the offer identified by the given id
	// as a single atomic step. Concurrent updates are serialized so that a
	// signature append and the related status transition are never
	// interleaved.
	UpdateOffer(
		ctx context.Context, id string,
		updateFn func(offer *Offer) (*Offer, error),
	) error
	// DeleteOffer removes the offer identified by the given id.
	DeleteOffer(ctx context.Context, id string) error
	// GetEventChannel returns the channel of OfferEvents.
	GetEventChannel() chan OfferEvent
}
