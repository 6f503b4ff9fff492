package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stream-renamer/work/middleware"
	"stream-renamer/work/proxy"
)

// NewRouter registers the public routes. The router matches on the encoded
// path so encoded slashes inside a configuration segment do not split it.
func NewRouter(sp *proxy.StreamProxy) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()
	router.Use(middleware.LoggingMiddleware)

	streams := middleware.CORSMiddleware(middleware.GzipMiddleware(HandleStreams(sp)))
	router.HandleFunc("/stream/{type}/{id}.json", streams).Methods("GET", "OPTIONS")
	router.HandleFunc("/stream/{type}/{id}/{extra}.json", streams).Methods("GET", "OPTIONS")
	router.HandleFunc("/{config}/stream/{type}/{id}.json", streams).Methods("GET", "OPTIONS")
	router.HandleFunc("/{config}/stream/{type}/{id}/{extra}.json", streams).Methods("GET", "OPTIONS")

	router.HandleFunc("/proxy", HandleProxyRedirect(sp)).Methods("GET", "HEAD")

	router.HandleFunc("/configure", HandleConfigure(sp)).Methods("GET")
	router.HandleFunc("/{config}/configure", HandleConfigure(sp)).Methods("GET")
	router.HandleFunc("/health", HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/", HandleRoot).Methods("GET")

	return router
}

func varOrEmpty(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
