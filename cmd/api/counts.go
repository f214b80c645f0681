// cmd/api/counts.go
package main

import "net/http"

// countsHandler handles GET /counts with the size of every collection.
func (app *applicationDependencies) countsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := app.models.Counts(r.Context())
	if err != nil {
		app.modelErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{
		"title":                         "Local Library Home",
		"book_count":                    counts.BookCount,
		"book_instance_count":           counts.BookInstanceCount,
		"book_instance_available_count": counts.BookInstanceAvailableCount,
		"author_count":                  counts.AuthorCount,
		"genre_count":                   counts.GenreCount,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
