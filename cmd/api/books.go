// cmd/api/books.go
// Handlers for the book resource.
package main

import (
	"net/http"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/validator"
	"golang.org/x/sync/errgroup"
)

// listBooksHandler handles GET /booklist. Books are ordered by title and
// carry their author document.
func (app *applicationDependencies) listBooksHandler(w http.ResponseWriter, r *http.Request) {
	books, err := app.models.Books.List(r.Context(), data.With("author"))
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"title": "Book List", "book_list": books}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showBookHandler handles GET /book/:ID. The book and its copies are read
// concurrently.
func (app *applicationDependencies) showBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "ID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var (
		book      *data.PopulatedBook
		instances []data.BookInstance
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		book, err = app.models.Books.Get(ctx, id, data.With("author", "genre"))
		return err
	})
	g.Go(func() error {
		var err error
		instances, err = app.models.BookInstances.ListByBook(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{
		"title":          book.Title,
		"book":           book,
		"book_instances": instances,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createBookHandler handles POST /book/create. The author and genres are
// only checked for being well-formed identifiers, not for existence.
func (app *applicationDependencies) createBookHandler(w http.ResponseWriter, r *http.Request) {
	var input data.CreateBookInput

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

	book, err := input.Book()
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.Books.Insert(r.Context(), book)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", book.URL())

	err = app.writeJSON(w, http.StatusCreated, envelope{"book": book}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// deleteBookHandler handles DELETE /book/:ID and removes the book's copies
// with it.
func (app *applicationDependencies) deleteBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "ID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.Books.Delete(r.Context(), id)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "Book and associated copies deleted successfully"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
