package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/exchange/internal/platform/httpx"
	"github.com/artfolio/exchange/internal/services"
)

const maxOfferBodySize = 4 * 1024

// OfferHandlers exposes negotiation endpoints nested under /orders.
type OfferHandlers struct {
	offers services.OfferService
}

// NewOfferHandlers constructs a new OfferHandlers instance.
func NewOfferHandlers(offers services.OfferService) *OfferHandlers {
	return &OfferHandlers{offers: offers}
}

// Routes registers the offer endpoints on the orders group. Authentication is
// inherited from the group middleware.
func (h *OfferHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/offers", h.proposeOffer)
	r.Post("/{orderID}/offers/{offerID}:counter", h.counterOffer)
	r.Post("/{orderID}/offers/{offerID}:accept", h.acceptOffer)
	r.Post("/{orderID}/offers/{offerID}:reject", h.rejectOffer)
}

type proposeOfferRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
}

type counterOfferRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
}

type rejectOfferRequest struct {
	Reason string `json:"reason"`
}

type offerResponse struct {
	Offer offerPayload `json:"offer"`
}

func (h *OfferHandlers) proposeOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOfferBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req proposeOfferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	offer, err := h.offers.ProposeOffer(ctx, services.ProposeOfferCommand{
		OrderID:     orderID,
		FromID:      identity.SubjectID,
		FromType:    string(identity.PartyType),
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, offerResponse{Offer: buildOfferPayload(offer)})
}

func (h *OfferHandlers) counterOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID, offerID, ok := offerParams(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOfferBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req counterOfferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	offer, err := h.offers.CounterOffer(ctx, services.CounterOfferCommand{
		OrderID:     orderID,
		OfferID:     offerID,
		FromID:      identity.SubjectID,
		FromType:    string(identity.PartyType),
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, offerResponse{Offer: buildOfferPayload(offer)})
}

func (h *OfferHandlers) acceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID, offerID, ok := offerParams(w, r)
	if !ok {
		return
	}

	order, err := h.offers.AcceptOffer(ctx, services.AcceptOfferCommand{
		OrderID:  orderID,
		OfferID:  offerID,
		FromID:   identity.SubjectID,
		FromType: string(identity.PartyType),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OfferHandlers) rejectOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID, offerID, ok := offerParams(w, r)
	if !ok {
		return
	}

	var req rejectOfferRequest
	if ok := decodeOptionalBody(ctx, w, r, &req); !ok {
		return
	}

	order, err := h.offers.RejectOffer(ctx, services.RejectOfferCommand{
		OrderID:  orderID,
		OfferID:  offerID,
		FromID:   identity.SubjectID,
		FromType: string(identity.PartyType),
		Reason:   strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func offerParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	offerID := strings.TrimSpace(chi.URLParam(r, "offerID"))
	if orderID == "" || offerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id and offer id are required", http.StatusBadRequest))
		return "", "", false
	}
	return orderID, offerID, true
}
