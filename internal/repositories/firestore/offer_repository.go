package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/artfolio/exchange/internal/domain"
	pfirestore "github.com/artfolio/exchange/internal/platform/firestore"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

const offersCollection = "offers"

// OfferRepository persists negotiation offers in Firestore. Offers live in a
// flat collection keyed by offer ID and carry their order reference, which
// keeps the append-only chain queryable without subcollection fan-out.
type OfferRepository struct {
	provider *pfirestore.Provider
	offers   *pfirestore.BaseRepository[offerDocument]
}

var _ repositories.OfferRepository = (*OfferRepository)(nil)

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	return &OfferRepository{
		provider: provider,
		offers:   pfirestore.NewBaseRepository[offerDocument](provider, offersCollection, nil, nil),
	}, nil
}

// Insert creates the offer document, failing with a conflict when the ID is
// already taken.
func (r *OfferRepository) Insert(ctx context.Context, offer domain.Offer) error {
	if r == nil || r.provider == nil {
		return errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(offer.ID) == "" {
		return errors.New("offer id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.offers.DocumentRef(ctx, offer.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, fromDomainOffer(offer))
	})
	if err != nil {
		return pfirestore.WrapError("offers.insert", err)
	}
	return nil
}

// Update replaces an existing offer document.
func (r *OfferRepository) Update(ctx context.Context, offer domain.Offer) error {
	if r == nil || r.provider == nil {
		return errors.New("offer repository not initialised")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.offers.DocumentRef(ctx, offer.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, fromDomainOffer(offer))
	})
	if err != nil {
		return pfirestore.WrapError("offers.update", err)
	}
	return nil
}

// FindByID loads the offer and verifies it belongs to the given order.
func (r *OfferRepository) FindByID(ctx context.Context, orderID string, offerID string) (domain.Offer, error) {
	if r == nil || r.offers == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}

	doc, err := r.offers.Get(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if doc.Data.OrderID != orderID {
		return domain.Offer{}, pfirestore.WrapError("offers.find",
			status.Errorf(codes.NotFound, "offer %s does not belong to order %s", offerID, orderID))
	}
	return toDomainOffer(doc.ID, doc.Data), nil
}

// ListByOrder returns the order's offers in chain order, oldest first.
func (r *OfferRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error) {
	if r == nil || r.offers == nil {
		return nil, errors.New("offer repository not initialised")
	}

	docs, err := r.offers.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("orderId", "==", orderID).
			OrderBy("createdAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		offers = append(offers, toDomainOffer(doc.ID, doc.Data))
	}
	return offers, nil
}

type offerDocument struct {
	OrderID       string        `firestore:"orderId"`
	From          partyDocument `firestore:"from"`
	AmountCents   int64         `firestore:"amountCents"`
	TaxTotalCents *int64        `firestore:"taxTotalCents,omitempty"`
	Note          string        `firestore:"note,omitempty"`
	RespondsTo    *string       `firestore:"respondsTo,omitempty"`
	SubmittedAt   *time.Time    `firestore:"submittedAt,omitempty"`
	CreatedAt     time.Time     `firestore:"createdAt"`
}

func fromDomainOffer(offer domain.Offer) offerDocument {
	return offerDocument{
		OrderID:       offer.OrderID,
		From:          partyDocument{ID: offer.From.ID, Type: string(offer.From.Type)},
		AmountCents:   offer.AmountCents,
		TaxTotalCents: offer.TaxTotalCents,
		Note:          offer.Note,
		RespondsTo:    offer.RespondsTo,
		SubmittedAt:   offer.SubmittedAt,
		CreatedAt:     offer.CreatedAt,
	}
}

func toDomainOffer(id string, doc offerDocument) domain.Offer {
	return domain.Offer{
		ID:            id,
		OrderID:       doc.OrderID,
		From:          domain.Party{ID: doc.From.ID, Type: domain.PartyType(doc.From.Type)},
		AmountCents:   doc.AmountCents,
		TaxTotalCents: doc.TaxTotalCents,
		Note:          doc.Note,
		RespondsTo:    doc.RespondsTo,
		SubmittedAt:   doc.SubmittedAt,
		CreatedAt:     doc.CreatedAt,
	}
}
