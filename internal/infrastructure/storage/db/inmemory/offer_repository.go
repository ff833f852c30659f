package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/covault/covaultd/internal/core/domain"
)

type offerInmemoryStore struct {
	offers map[string]*domain.Offer
	lock   *sync.RWMutex
}

type offerRepository struct {
	store            *offerInmemoryStore
	chEvents         chan domain.OfferEvent
	externalChEvents chan domain.OfferEvent
	chLock           *sync.Mutex
}

func NewOfferRepository() domain.OfferRepository {
	return newOfferRepository()
}

func newOfferRepository() *offerRepository {
	return &offerRepository{
		store: &offerInmemoryStore{
			offers: make(map[string]*domain.Offer),
			lock:   &sync.RWMutex{},
		},
		chEvents:         make(chan domain.OfferEvent),
		externalChEvents: make(chan domain.OfferEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *offerRepository) AddOffer(
	ctx context.Context, offer *domain.Offer,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.offers[offer.ID]; ok {
		return false, nil
	}
	r.store.offers[offer.ID] = offer

	go r.publishEvent(domain.OfferEvent{
		EventType: domain.OfferCreated,
		Offer:     offer,
	})
	return true, nil
}

func (r *offerRepository) GetOffer(
	ctx context.Context, id string,
) (*domain.Offer, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	return r.getOffer(id)
}

func (r *offerRepository) GetAllOffers(
	ctx context.Context,
) ([]*domain.Offer, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	offers := make([]*domain.Offer, 0, len(r.store.offers))
	for _, offer := range r.store.offers {
		offers = append(offers, offer)
	}
	return offers, nil
}

func (r *offerRepository) UpdateOffer(
	ctx context.Context, id string,
	updateFn func(offer *domain.Offer) (*domain.Offer, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	offer, err := r.getOffer(id)
	if err != nil {
		return err
	}

	prevStatus := offer.Status
	prevSigs := offer.SignatureCount()

	updatedOffer, err := updateFn(offer)
	if err != nil {
		return err
	}
	r.store.offers[id] = updatedOffer

	for _, event := range offerEventsForUpdate(
		updatedOffer, prevStatus, prevSigs,
	) {
		go r.publishEvent(event)
	}
	return nil
}

func (r *offerRepository) DeleteOffer(ctx context.Context, id string) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	offer, err := r.getOffer(id)
	if err != nil {
		return err
	}
	delete(r.store.offers, id)

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
	offer, ok := r.store.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %s not found", id)
	}
	return offer, nil
}

func (r *offerRepository) publishEvent(event domain.OfferEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event

	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *offerRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	r.store.offers = make(map[string]*domain.Offer)
}

func (r *offerRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

// offerEventsForUpdate derives the events to publish after an update by
// comparing the offer against its previous signature count and status.
func offerEventsForUpdate(
	offer *domain.Offer, prevStatus domain.OfferStatus, prevSigs int,
) []domain.OfferEvent {
	events := make([]domain.OfferEvent, 0, 2)
	if offer.SignatureCount() > prevSigs {
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
