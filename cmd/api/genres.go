// cmd/api/genres.go
package main

import (
	"net/http"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/validator"
	"golang.org/x/sync/errgroup"
)

func (app *applicationDependencies) listGenresHandler(w http.ResponseWriter, r *http.Request) {
	genres, err := app.models.Genres.List(r.Context())
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"title": "Genre List", "genre_list": genres}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *applicationDependencies) showGenreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "genreID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var (
		genre *data.Genre
		books []data.BookSummary
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		genre, err = app.models.Genres.Get(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		books, err = app.models.Books.ListByGenre(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{
		"title":       "Genre Detail",
		"genre":       genre,
		"genre_books": books,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *applicationDependencies) createGenreHandler(w http.ResponseWriter, r *http.Request) {
	var input data.CreateGenreInput

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

	genre := input.Genre()
	err = app.models.Genres.Insert(r.Context(), genre)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", genre.URL())

	err = app.writeJSON(w, http.StatusCreated, envelope{"genre": genre}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// deleteGenreHandler handles DELETE /genre/:genreID. Books that list the
// genre are left as they are.
func (app *applicationDependencies) deleteGenreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "genreID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.models.Genres.Delete(r.Context(), id)
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "Genre deleted successfully"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
