// cmd/api/instances.go
// Handlers for book instances, the physical copies of a book.
package main

import (
	"net/http"
	"time"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/validator"
)

func (app *applicationDependencies) listBookInstancesHandler(w http.ResponseWriter, r *http.Request) {
	instances, err := app.models.BookInstances.List(r.Context(), data.With("book"))
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"title": "Book Instance List", "bookinstance_list": instances}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *applicationDependencies) showBookInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "ID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	instance, err := app.models.BookInstances.Get(r.Context(), id, data.With("book"))
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"title": "Book:", "bookinstance": instance}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createBookInstanceHandler handles POST /instance/create. Status defaults
// to Maintenance and due_back to now.
func (app *applicationDependencies) createBookInstanceHandler(w http.ResponseWriter, r *http.Request) {
	var input data.CreateBookInstanceInput

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	v := validator.New()
	if input.Validate(v); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	instance, err := input.BookInstance(time.Now())
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.BookInstances.Insert(r.Context(), instance)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", instance.URL())

	err = app.writeJSON(w, http.StatusCreated, envelope{"instance": instance}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *applicationDependencies) deleteBookInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "ID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.BookInstances.Delete(r.Context(), id)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "Book instance deleted successfully"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
