package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/charlesng35/linkcard/internal/services"
	appErrors "github.com/charlesng35/linkcard/pkg/errors"
)

// serviceError maps service sentinels onto the client-facing AppErrors.
func serviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrCardNotFound):
		return appErrors.ErrNotFound.WithMessage("Card not found")
	case errors.Is(err, services.ErrFriendLinkNotFound):
		return appErrors.ErrNotFound.WithMessage("Friend link not found")
	case errors.Is(err, services.ErrFriendLinkExists):
		return appErrors.ErrConflict.WithMessage("A friend link with this URL already exists")
	case errors.Is(err, services.ErrInvalidURL):
		return appErrors.ErrInvalidURL
	case errors.Is(err, services.ErrInvalidStatus):
		return appErrors.NewBadRequest("status must be active or inactive")
	case errors.Is(err, services.ErrInvalidSetting):
		return appErrors.NewBadRequest(strings.TrimPrefix(err.Error(), services.ErrInvalidSetting.Error()+": "))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.ErrServiceUnavailable.WithInternal(err)
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.ErrInternalServer.WithInternal(err)
}
