package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/platform/httpx"
	"github.com/artfolio/exchange/internal/repositories"
)

// writeDomainError translates taxonomy errors into the JSON error envelope.
// Validation faults surface every accumulated code under a "codes" detail so
// clients can render all of them at once.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var exchErr *domain.Error
	if errors.As(err, &exchErr) && exchErr != nil {
		status := statusForError(exchErr)
		payload := httpx.NewError(string(exchErr.Code), exchErr.SafeMessage(), status)
		if codes := exchErr.AllCodes(); len(codes) > 1 {
			values := make([]string, 0, len(codes))
			for _, code := range codes {
				values = append(values, string(code))
			}
			payload = payload.WithDetails(map[string]any{"codes": values})
		}
		httpx.WriteError(ctx, w, payload)
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource version conflict", http.StatusConflict))
		case repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("unavailable", "storage unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process request", http.StatusInternalServerError))
		}
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process request", http.StatusInternalServerError))
}

func statusForError(err *domain.Error) int {
	switch err.Kind {
	case domain.ErrorKindValidation:
		switch err.Code {
		case domain.CodeNotFound, domain.CodeUnknownArtwork, domain.CodeUnknownEditionSet:
			return http.StatusNotFound
		case domain.CodeInvalidState, domain.CodeCantSubmit, domain.CodeOrderNotSubmitted, domain.CodeNotLastOffer:
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	case domain.ErrorKindProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
