package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateOffer opens a pending offer to trade energy at a stated price. The
// offer expires 24 hours after creation unless accepted or cancelled first.
func (service *Service) CreateOffer(ctx context.Context, fromUserID UserID, energy EnergyWattHours, unitPrice UnitPriceNgweePerKWh, tradeType TradeType, toUserID *UserID) (Offer, error) {
	var offer Offer
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := NewPositiveEnergyWattHours(energy.Int64()); err != nil {
			return err
		}
		if _, err := NewUnitPrice(unitPrice.Int64()); err != nil {
			return err
		}
		total, err := tradeCost(energy, unitPrice)
		if err != nil {
			return err
		}
		if _, err := transactionStore.GetUser(ctx, fromUserID); err != nil {
			return err
		}
		if toUserID != nil {
			if *toUserID == fromUserID {
				return ErrSelfTrade
			}
			if _, err := transactionStore.GetUser(ctx, *toUserID); err != nil {
				return err
			}
		}
		offerID, err := NewOfferID(uuid.NewString())
		if err != nil {
			return err
		}
		createdUnixUTC := service.nowFn()
		offer = Offer{
			OfferID:          offerID,
			FromUserID:       fromUserID,
			ToUserID:         toUserID,
			EnergyWh:         energy,
			PricePerKWh:      unitPrice,
			TotalNgwee:       total,
			TradeType:        tradeType,
			Status:           OfferStatusPending,
			CreatedUnixUTC:   createdUnixUTC,
			ExpiresAtUnixUTC: createdUnixUTC + int64(offerTTL.Seconds()),
		}
		return transactionStore.InsertOffer(ctx, offer)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreateOffer,
		UserID:        fromUserID,
		Reference:     offer.OfferID.String(),
		EnergyWh:      energy,
		CurrencyNgwee: offer.TotalNgwee,
		Error:         operationError,
	})
	return offer, operationError
}

// ListOpenOffers returns pending offers, filtering out ones whose expiry has
// already passed without being stamped.
func (service *Service) ListOpenOffers(ctx context.Context) ([]Offer, error) {
	pending, err := service.store.ListOffersByStatus(ctx, OfferStatusPending)
	if err != nil {
		return nil, err
	}
	nowUnixUTC := service.nowFn()
	open := make([]Offer, 0, len(pending))
	for _, offer := range pending {
		if nowUnixUTC > offer.ExpiresAtUnixUTC {
			continue
		}
		open = append(open, offer)
	}
	return open, nil
}

// AcceptOffer settles a pending offer for the accepting user. The
// pending→accepted transition is a conditional update, so exactly one of two
// concurrent acceptors wins; the other observes ErrOfferNotPending.
func (service *Service) AcceptOffer(ctx context.Context, offerID OfferID, acceptingUserID UserID) (Transaction, error) {
	var transaction Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		offer, err := transactionStore.GetOfferForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != OfferStatusPending {
			return fmt.Errorf("%w: status %s", ErrOfferNotPending, offer.Status)
		}
		if service.nowFn() > offer.ExpiresAtUnixUTC {
			// Stamp lazily; the guard below keeps a racing accept out.
			if err := transactionStore.UpdateOfferStatus(ctx, offerID, OfferStatusPending, OfferStatusExpired); err != nil {
				return err
			}
			return fmt.Errorf("%w: expired at %d", ErrOfferExpired, offer.ExpiresAtUnixUTC)
		}
		if offer.ToUserID != nil && *offer.ToUserID != acceptingUserID {
			return fmt.Errorf("%w: offer is directed at another user", ErrForbidden)
		}
		if acceptingUserID == offer.FromUserID {
			return ErrSelfTrade
		}

		buyerID, sellerID := offerParties(offer, acceptingUserID)
		if err := transactionStore.MarkOfferAccepted(ctx, offerID, acceptingUserID); err != nil {
			return err
		}
		settled, err := service.settleTradeTx(ctx, transactionStore, buyerID, sellerID, offer.EnergyWh, offer.PricePerKWh)
		if err != nil {
			return err
		}
		transaction = settled
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationAcceptOffer,
		UserID:        acceptingUserID,
		Reference:     offerID.String(),
		EnergyWh:      transaction.EnergyWh,
		CurrencyNgwee: transaction.CurrencyNgwee,
		Error:         operationError,
	})
	return transaction, operationError
}

// CancelOffer lets the creator retire a pending offer.
func (service *Service) CancelOffer(ctx context.Context, offerID OfferID, requesterID UserID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		offer, err := transactionStore.GetOfferForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.FromUserID != requesterID {
			return fmt.Errorf("%w: only the creator may cancel", ErrForbidden)
		}
		if offer.Status != OfferStatusPending {
			return fmt.Errorf("%w: status %s", ErrOfferNotPending, offer.Status)
		}
		return transactionStore.UpdateOfferStatus(ctx, offerID, OfferStatusPending, OfferStatusCancelled)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelOffer,
		UserID:    requesterID,
		Reference: offerID.String(),
		Error:     operationError,
	})
	return operationError
}

// offerParties resolves who pays currency and who delivers energy. A sell
// offer has the creator delivering energy; a buy offer has the creator
// paying for it.
func offerParties(offer Offer, acceptingUserID UserID) (buyerID UserID, sellerID UserID) {
	if offer.TradeType == TradeTypeBuy {
		return offer.FromUserID, acceptingUserID
	}
	return acceptingUserID, offer.FromUserID
}
