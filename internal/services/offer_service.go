package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/repositories"
)

const (
	offerEventProposed  = "offer.proposed"
	offerEventCountered = "offer.countered"
	offerEventAccepted  = "offer.accepted"
	offerEventRejected  = "offer.rejected"

	stateReasonBuyerRejected  = "buyer_rejected"
	stateReasonSellerRejected = "seller_rejected"
)

// OrderSubmitter is the slice of OrderService the accept path needs.
type OrderSubmitter interface {
	Submit(ctx context.Context, cmd SubmitOrderCommand) (Order, error)
}

// OfferServiceDeps bundles collaborators required to construct the offer service.
type OfferServiceDeps struct {
	Orders     repositories.OrderRepository
	Offers     repositories.OfferRepository
	UnitOfWork repositories.UnitOfWork
	Submitter  OrderSubmitter
	// NotePolicy sanitizes free-text offer notes. Defaults to the strict policy.
	NotePolicy  *bluemonday.Policy
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type offerService struct {
	orders     repositories.OrderRepository
	offers     repositories.OfferRepository
	unitOfWork repositories.UnitOfWork
	submitter  OrderSubmitter
	notePolicy *bluemonday.Policy
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOfferService wires dependencies into a concrete OfferService implementation.
func NewOfferService(deps OfferServiceDeps) (OfferService, error) {
	if deps.Orders == nil {
		return nil, errors.New("offer service: order repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("offer service: offer repository is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("offer service: order submitter is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	policy := deps.NotePolicy
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &offerService{
		orders:     deps.Orders,
		offers:     deps.Offers,
		unitOfWork: unit,
		submitter:  deps.Submitter,
		notePolicy: policy,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *offerService) ProposeOffer(ctx context.Context, cmd ProposeOfferCommand) (Offer, error) {
	order, err := s.loadNegotiable(ctx, cmd.OrderID)
	if err != nil {
		return Offer{}, err
	}
	from, err := s.resolveParty(order, cmd.FromID, cmd.FromType)
	if err != nil {
		return Offer{}, err
	}
	if cmd.AmountCents <= 0 {
		return Offer{}, domain.NewError(domain.CodeInvalidAmountCents, "offer amount must be a positive integer")
	}
	if order.LastOfferID != nil {
		return Offer{}, domain.NewError(domain.CodeInvalidOffer, "order already has an open offer chain; counter instead")
	}

	now := s.clock()
	offer := Offer{
		ID:          offerIDPrefix + s.newID(),
		OrderID:     order.ID,
		From:        from,
		AmountCents: cmd.AmountCents,
		Note:        s.sanitizeNote(cmd.Note),
		SubmittedAt: &now,
		CreatedAt:   now,
	}

	if err := s.appendOffer(ctx, order, offer, now); err != nil {
		return Offer{}, err
	}
	s.publishOfferEvent(ctx, offerEventProposed, order, offer)
	return offer, nil
}

func (s *offerService) CounterOffer(ctx context.Context, cmd CounterOfferCommand) (Offer, error) {
	order, err := s.loadNegotiable(ctx, cmd.OrderID)
	if err != nil {
		return Offer{}, err
	}
	from, err := s.resolveParty(order, cmd.FromID, cmd.FromType)
	if err != nil {
		return Offer{}, err
	}
	if cmd.AmountCents <= 0 {
		return Offer{}, domain.NewError(domain.CodeInvalidAmountCents, "offer amount must be a positive integer")
	}

	head, err := s.chainHead(ctx, order, cmd.OfferID, domain.CodeNotLastOffer)
	if err != nil {
		return Offer{}, err
	}
	if head.From == from {
		return Offer{}, domain.NewError(domain.CodeCannotCounter, "a party cannot counter its own pending offer")
	}

	now := s.clock()
	offer := Offer{
		ID:          offerIDPrefix + s.newID(),
		OrderID:     order.ID,
		From:        from,
		AmountCents: cmd.AmountCents,
		Note:        s.sanitizeNote(cmd.Note),
		RespondsTo:  valuePtr(head.ID),
		SubmittedAt: &now,
		CreatedAt:   now,
	}

	if err := s.appendOffer(ctx, order, offer, now); err != nil {
		return Offer{}, err
	}
	s.publishOfferEvent(ctx, offerEventCountered, order, offer)
	return offer, nil
}

func (s *offerService) AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (Order, error) {
	order, err := s.loadNegotiable(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	from, err := s.resolveParty(order, cmd.FromID, cmd.FromType)
	if err != nil {
		return Order{}, err
	}

	head, err := s.chainHead(ctx, order, cmd.OfferID, domain.CodeCannotAcceptOffer)
	if err != nil {
		return Order{}, err
	}
	if head.From == from {
		return Order{}, domain.NewError(domain.CodeCannotAcceptOffer, "a party cannot accept its own offer")
	}

	// Freeze the agreed amount into the line item before submitting.
	now := s.clock()
	expectedVersion := order.Version
	order.ItemsTotalCents = head.AmountCents
	if len(order.LineItems) > 0 {
		order.LineItems[0].ListPriceCents = head.AmountCents
	}
	order.CommissionFeeCents = CommissionFee(order.CommissionRate, order.ItemsTotalCents)
	order.RecomputeTotals()
	order.UpdatedAt = now
	if err := s.persistOrder(ctx, &order, expectedVersion, domain.CodeNotLastOffer); err != nil {
		return Order{}, err
	}

	pending := domain.OrderStatePending
	submitted, err := s.submitter.Submit(ctx, SubmitOrderCommand{
		OrderID:       order.ID,
		ActorID:       from.ID,
		ExpectedState: &pending,
	})
	if err != nil {
		return Order{}, err
	}

	s.publishOfferEvent(ctx, offerEventAccepted, submitted, head)
	return submitted, nil
}

func (s *offerService) RejectOffer(ctx context.Context, cmd RejectOfferCommand) (Order, error) {
	order, err := s.loadNegotiable(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	from, err := s.resolveParty(order, cmd.FromID, cmd.FromType)
	if err != nil {
		return Order{}, err
	}

	head, err := s.chainHead(ctx, order, cmd.OfferID, domain.CodeCannotRejectOffer)
	if err != nil {
		return Order{}, err
	}
	if head.From == from {
		return Order{}, domain.NewError(domain.CodeCannotRejectOwnOffer, "a party cannot reject its own offer")
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = stateReasonSellerRejected
		if from == order.Buyer {
			reason = stateReasonBuyerRejected
		}
	}

	now := s.clock()
	expectedVersion := order.Version
	applyTransition(&order, domain.OrderStateAbandoned, reason, now)
	if err := s.persistOrder(ctx, &order, expectedVersion, domain.CodeNotLastOffer); err != nil {
		return Order{}, err
	}

	s.publishOfferEvent(ctx, offerEventRejected, order, head)
	return order, nil
}

// loadNegotiable fetches the order and verifies it can host offer operations.
func (s *offerService) loadNegotiable(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, domain.NewError(domain.CodeMissingRequiredParam, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if order.Mode != domain.OrderModeOffer {
		return Order{}, domain.NewError(domain.CodeCannotOffer, "order is not in offer mode")
	}
	if order.State != domain.OrderStatePending {
		return Order{}, domain.NewError(domain.CodeInvalidState, "negotiation is only open while the order is pending")
	}
	return order, nil
}

func (s *offerService) resolveParty(order Order, rawID, rawType string) (Party, error) {
	partyType, ok := domain.ParsePartyType(strings.TrimSpace(rawType))
	if !ok {
		return Party{}, domain.NewError(domain.CodeUnknownParticipantType, "party type is not recognised")
	}
	party := Party{ID: strings.TrimSpace(rawID), Type: partyType}
	if party.ID == "" {
		return Party{}, domain.NewError(domain.CodeMissingRequiredParam, "party id is required")
	}
	if party != order.Buyer && party != order.Seller {
		return Party{}, domain.NewError(domain.CodeCannotOffer, "party is not part of the order")
	}
	return party, nil
}

// chainHead loads the current head and verifies the caller acted on it.
// staleCode is reported when the caller's view of the chain is outdated.
func (s *offerService) chainHead(ctx context.Context, order Order, offerID string, staleCode domain.ErrorCode) (Offer, error) {
	if order.LastOfferID == nil {
		return Offer{}, domain.NewError(domain.CodeInvalidOffer, "order has no offer chain")
	}
	offerID = strings.TrimSpace(offerID)
	if offerID != "" && offerID != *order.LastOfferID {
		return Offer{}, domain.NewError(staleCode, "offer "+offerID+" is no longer the chain head")
	}
	head, err := s.offers.FindByID(ctx, order.ID, *order.LastOfferID)
	if err != nil {
		return Offer{}, mapOrderRepositoryError(err)
	}
	if !head.Submitted() {
		return Offer{}, domain.NewError(domain.CodeInvalidOffer, "chain head has not been submitted")
	}
	return head, nil
}

// appendOffer writes the offer and re-points the order at the new head in one
// unit, updating the effective items total to the proposed amount.
func (s *offerService) appendOffer(ctx context.Context, order Order, offer Offer, now time.Time) error {
	expectedVersion := order.Version
	order.LastOfferID = valuePtr(offer.ID)
	order.ItemsTotalCents = offer.AmountCents
	order.CommissionFeeCents = CommissionFee(order.CommissionRate, offer.AmountCents)
	order.RecomputeTotals()
	order.UpdatedAt = now

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.offers.Insert(txCtx, offer); err != nil {
			return mapOrderRepositoryError(err)
		}
		order.Version = expectedVersion + 1
		if err := s.orders.Update(txCtx, order, &expectedVersion); err != nil {
			if isRepoConflict(err) {
				return domain.WrapError(domain.CodeNotLastOffer, "offer chain moved concurrently", err)
			}
			return mapOrderRepositoryError(err)
		}
		return nil
	})
}

func (s *offerService) persistOrder(ctx context.Context, order *Order, expectedVersion int64, conflictCode domain.ErrorCode) error {
	order.Version = expectedVersion + 1
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, *order, &expectedVersion)
	})
	if err != nil {
		if isRepoConflict(err) {
			return domain.WrapError(conflictCode, "order was modified concurrently", err)
		}
		return mapOrderRepositoryError(err)
	}
	return nil
}

func (s *offerService) sanitizeNote(note string) string {
	return strings.TrimSpace(s.notePolicy.Sanitize(note))
}

func (s *offerService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *offerService) publishOfferEvent(ctx context.Context, eventType string, order Order, offer Offer) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:         eventType,
		OrderID:      order.ID,
		OrderCode:    order.Code,
		CurrentState: string(order.State),
		ActorID:      offer.From.ID,
		OccurredAt:   s.clock(),
		Metadata: map[string]any{
			"offerId": offer.ID,
			"amount":  offer.AmountCents,
		},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
