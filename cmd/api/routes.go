// cmd/api/routes.go
package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// routes registers all HTTP endpoints and returns the router wrapped in the
// middleware chain.
//
// Middleware chain (outermost to innermost):
//
//	logRequests → recoverPanic → enableCORS → rateLimit → router
//
// recoverPanic sits inside logRequests so the 500 it writes is what the
// access log records.
//
// Literal paths such as /book/create are registered ahead of the
// parameterized /book/:ID routes.
func (app *applicationDependencies) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = app.fallbackHandler()
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/counts", app.requireStore(app.countsHandler))

	router.HandlerFunc(http.MethodGet, "/booklist", app.requireStore(app.listBooksHandler))
	router.HandlerFunc(http.MethodPost, "/book/create", app.requireStore(app.createBookHandler))
	router.HandlerFunc(http.MethodGet, "/book/:ID", app.requireStore(app.showBookHandler))
	router.HandlerFunc(http.MethodDelete, "/book/:ID", app.requireStore(app.deleteBookHandler))

	router.HandlerFunc(http.MethodGet, "/authorlist", app.requireStore(app.listAuthorsHandler))
	router.HandlerFunc(http.MethodPost, "/author/create", app.requireStore(app.createAuthorHandler))
	router.HandlerFunc(http.MethodGet, "/author/:authorID", app.requireStore(app.showAuthorHandler))
	router.HandlerFunc(http.MethodDelete, "/author/:authorID", app.requireStore(app.deleteAuthorHandler))

	router.HandlerFunc(http.MethodGet, "/genrelist", app.requireStore(app.listGenresHandler))
	router.HandlerFunc(http.MethodPost, "/genre/create", app.requireStore(app.createGenreHandler))
	router.HandlerFunc(http.MethodGet, "/genre/:genreID", app.requireStore(app.showGenreHandler))
	router.HandlerFunc(http.MethodDelete, "/genre/:genreID", app.requireStore(app.deleteGenreHandler))

	router.HandlerFunc(http.MethodGet, "/instancelist", app.requireStore(app.listBookInstancesHandler))
	router.HandlerFunc(http.MethodPost, "/instance/create", app.requireStore(app.createBookInstanceHandler))
	router.HandlerFunc(http.MethodGet, "/instance/:ID", app.requireStore(app.showBookInstanceHandler))
	router.HandlerFunc(http.MethodDelete, "/instance/:ID", app.requireStore(app.deleteBookInstanceHandler))

	return app.logRequests(app.recoverPanic(app.enableCORS(app.rateLimit(router))))
}

// fallbackHandler serves files from the static directory, when one is
// configured, for GET and HEAD requests no route matched. Everything else
// gets the JSON 404.
func (app *applicationDependencies) fallbackHandler() http.Handler {
	if app.config.staticDir == "" {
		return http.HandlerFunc(app.notFoundResponse)
	}

	files := http.FileServer(http.Dir(app.config.staticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			app.notFoundResponse(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
