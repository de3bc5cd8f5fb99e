package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/iota-uz/sar/modules/registry/services"
)

const (
	exitOK         = 0
	exitInternal   = 1
	exitValidation = 2
	exitUsage      = 3
	exitStorage    = 4
)

// cliError carries the process exit code for err.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func (e *cliError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	var ce *cliError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return ce.code
	default:
		return exitInternal
	}
}

// registryError maps a registry service failure onto an exit code and
// prefixes the message with the service error code.
func registryError(err error) error {
	if err == nil {
		return nil
	}
	var se *services.ServiceError
	if !errors.As(err, &se) {
		return withCode(exitStorage, err)
	}
	wrapped := fmt.Errorf("%s: %w", se.Code, err)
	switch {
	case se.Status == http.StatusUnprocessableEntity:
		return withCode(exitValidation, wrapped)
	case se.Status >= http.StatusInternalServerError:
		return withCode(exitStorage, wrapped)
	default:
		return withCode(exitUsage, wrapped)
	}
}
