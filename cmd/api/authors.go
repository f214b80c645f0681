// cmd/api/authors.go
package main

import (
	"net/http"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/validator"
	"golang.org/x/sync/errgroup"
)

func (app *applicationDependencies) listAuthorsHandler(w http.ResponseWriter, r *http.Request) {
	authors, err := app.models.Authors.List(r.Context())
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"title": "Author List", "author_list": authors}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showAuthorHandler handles GET /author/:authorID with the title and
// summary of each of the author's books.
func (app *applicationDependencies) showAuthorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "authorID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var (
		author *data.Author
		books  []data.BookSummary
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		author, err = app.models.Authors.Get(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		books, err = app.models.Books.ListByAuthor(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{
		"title":        "Author Detail",
		"author":       author,
		"author_books": books,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *applicationDependencies) createAuthorHandler(w http.ResponseWriter, r *http.Request) {
	var input data.CreateAuthorInput

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

	author := input.Author()
	err = app.models.Authors.Insert(r.Context(), author)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", author.URL())

	err = app.writeJSON(w, http.StatusCreated, envelope{"author": author}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// deleteAuthorHandler handles DELETE /author/:authorID. The author's books
// and their copies go too.
func (app *applicationDependencies) deleteAuthorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "authorID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.Authors.Delete(r.Context(), id)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "Author and associated books deleted successfully"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
