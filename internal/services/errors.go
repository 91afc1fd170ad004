package services

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// storageError converts a repository failure into a service error.
//
// "subject" names the entity in not-found and conflict messages ("user", "role").
// Anything else is logged with its cause and returned as a generic system error.
func storageError(logger *zap.Logger, op string, subject string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return apperr.NotFound("%s not found", subject)
	case errors.Is(err, models.ErrAlreadyExists):
		return apperr.Conflict("%s already exists", subject)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	logger.Error(op+" failed", zap.Error(err))
	return apperr.System(err)
}

// validationError converts an ozzo-validation result into a validation error
// whose message names the offending fields.
func validationError(logger *zap.Logger, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		logger.Error("validation rule failed", zap.Error(err))
		return apperr.System(err)
	}
	return apperr.Validation("%s", fieldErrs.Error())
}
