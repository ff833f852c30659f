package dbbadger

import (
	"context"
	"fmt"
	"sync"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type offerRepository struct {
	store            *badgerhold.Store
	updateLock       *sync.Mutex
	chEvents         chan domain.OfferEvent
	externalChEvents chan domain.OfferEvent
	chLock           *sync.Mutex
}

func newOfferRepository(store *badgerhold.Store) *offerRepository {
	return &offerRepository{
		store:            store,
		updateLock:       &sync.Mutex{},
		chEvents:         make(chan domain.OfferEvent),
		externalChEvents: make(chan domain.OfferEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *offerRepository) AddOffer(
	ctx context.Context, offer *domain.Offer,
) (bool, error) {
	if err := r.store.Insert(offer.ID, *offer); err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	go r.publishEvent(domain.OfferEvent{
		EventType: domain.OfferCreated,
		Offer:     offer,
	})

	return true, nil
}

func (r *offerRepository) GetOffer(
	ctx context.Context, id string,
) (*domain.Offer, error) {
	return r.getOffer(id)
}

func (r *offerRepository) GetAllOffers(
	ctx context.Context,
) ([]*domain.Offer, error) {
	var offers []domain.Offer
	if err := r.store.Find(&offers, nil); err != nil {
		return nil, err
	}

	list := make([]*domain.Offer, 0, len(offers))
	for i := range offers {
		list = append(list, &offers[i])
	}
	return list, nil
}

func (r *offerRepository) UpdateOffer(
	ctx context.Context, id string,
	updateFn func(offer *domain.Offer) (*domain.Offer, error),
) error {
	r.updateLock.Lock()
	defer r.updateLock.Unlock()

	offer, err := r.getOffer(id)
	if err != nil {
		return err
	}

	prevStatus := offer.Status
	prevSigCount := offer.SignatureCount()

	updatedOffer, err := updateFn(offer)
	if err != nil {
		return err
	}

	if err := r.store.Update(id, *updatedOffer); err != nil {
		return err
	}

	for _, event := range offerEventsForUpdate(
		prevStatus, prevSigCount, updatedOffer,
	) {
		go r.publishEvent(event)
	}

	return nil
}

func (r *offerRepository) DeleteOffer(ctx context.Context, id string) error {
	offer, err := r.getOffer(id)
	if err != nil {
		return err
	}

	if err := r.store.Delete(id, domain.Offer{}); err != nil {
		return err
	}

	go r.publishEvent(domain.OfferEvent{
		EventType: domain.OfferRemoved,
		Offer:     offer,
	})

	return nil
}

func (r *offerRepository) GetEventChannel() chan domain.OfferEvent {
	return r.externalChEvents
}

func (r *offerRepository) getOffer(id string) (*domain.Offer, error) {
	var offer domain.Offer
	if err := r.store.Get(id, &offer); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("offer %s not found", id)
		}
		return nil, err
	}
	return &offer, nil
}

func (r *offerRepository) publishEvent(event domain.OfferEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over the external channel without blocking in case nobody reads.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *offerRepository) reset() {
	offers, _ := r.GetAllOffers(context.Background())
	for _, offer := range offers {
		//nolint
		r.store.Delete(offer.ID, domain.Offer{})
	}
}

func (r *offerRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}

func offerEventsForUpdate(
	prevStatus domain.OfferStatus, prevSigCount int, offer *domain.Offer,
) []domain.OfferEvent {
	events := make([]domain.OfferEvent, 0, 2)
	if offer.SignatureCount() > prevSigCount {
		events = append(events, domain.OfferEvent{
			EventType: domain.OfferSignatureAdded,
			Offer:     offer,
		})
	}
	if offer.Status != prevStatus {
		switch offer.Status {
		case domain.OfferStatusReady:
			events = append(events, domain.OfferEvent{
				EventType: domain.OfferReady,
				Offer:     offer,
			})
		case domain.OfferStatusBroadcasting:
			events = append(events, domain.OfferEvent{
				EventType: domain.OfferBroadcasting,
				Offer:     offer,
			})
		}
	}
	return events
}
