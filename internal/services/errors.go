package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

var (
	// ErrValidation signals missing or invalid input. Nothing was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the order or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates the order status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyRefunded indicates a refund has already been recorded.
	ErrAlreadyRefunded = errors.New("order already refunded")
	// ErrMissingPaymentReference indicates a gateway order has no payment reference.
	ErrMissingPaymentReference = errors.New("missing payment reference")
	// ErrGateway wraps payment provider failures.
	ErrGateway = errors.New("payment gateway error")
	// ErrConflict indicates a concurrent update or duplicate id.
	ErrConflict = errors.New("conflict")
	// ErrPaymentIncomplete indicates the wallet payment has not completed yet.
	ErrPaymentIncomplete = errors.New("payment not completed")
	// ErrUnavailable indicates a dependency is temporarily unreachable.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError lists the invalid fields of a request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type validator struct {
	fields map[string]string
}

func (v *validator) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

func (v *validator) add(field, message string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = message
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

// passThroughOrMap keeps lifecycle sentinels raised inside a mutation and
// classifies everything else as a repository failure.
func passThroughOrMap(err error) error {
	for _, sentinel := range []error{ErrInvalidTransition, ErrAlreadyRefunded, ErrPaymentIncomplete, ErrValidation} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return mapRepositoryError(err)
}
