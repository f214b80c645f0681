// cmd/api/errors.go
// This file contains all error-response helpers for the application.
package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/docstore"
)

// logError logs an internal error at ERROR level with the request method,
// URL and request id for context.
func (app *applicationDependencies) logError(r *http.Request, err error) {
	app.logger.Error(err.Error(),
		slog.String("request_method", r.Method),
		slog.String("request_url", r.URL.String()),
		slog.String("request_id", requestIDFrom(r)),
	)
}

// errorResponse sends a JSON error envelope with the given status code and message.
func (app *applicationDependencies) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	data := envelope{"error": message}
	err := app.writeJSON(w, status, data, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// serverErrorResponse logs the error and sends a generic 500 to the client.
func (app *applicationDependencies) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (app *applicationDependencies) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *applicationDependencies) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := "the " + r.Method + " method is not supported for this resource"
	app.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

func (app *applicationDependencies) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// failedValidationResponse sends a 422 Unprocessable Entity response containing
// the field-level validation errors collected by a Validator.
func (app *applicationDependencies) failedValidationResponse(w http.ResponseWriter, r *http.Request, errors map[string]string) {
	app.errorResponse(w, r, http.StatusUnprocessableEntity, errors)
}

func (app *applicationDependencies) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}

// storeUnavailableResponse sends a 503. The request is not retried or queued.
func (app *applicationDependencies) storeUnavailableResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusServiceUnavailable, "the document store is currently unavailable, please try again later")
}

// modelErrorResponse maps an error from the data layer onto a response.
// Partial cascades are always logged; the message names the step and the
// parent id.
func (app *applicationDependencies) modelErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, data.ErrRecordNotFound):
		app.notFoundResponse(w, r)
	case errors.Is(err, docstore.ErrUnavailable):
		if errors.Is(err, data.ErrPartialCascade) {
			app.logError(r, err)
		}
		app.storeUnavailableResponse(w, r)
	default:
		app.serverErrorResponse(w, r, err)
	}
}
