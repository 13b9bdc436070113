package repository

import (
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// unavailable marks a backend fault so the service can fail closed.
// Domain errors pass through untouched.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrStorageUnavailable.WithError(fmt.Errorf("%s: %w", op, err))
}

func challengeKey(id string) string {
	return "captcha:challenge:" + id
}

func ticketKey(ticket string) string {
	return "captcha:ticket:" + ticket
}

func failureKey(clientIP string) string {
	return "captcha:failures:" + clientIP
}
