package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/interpose/middleware"
	"github.com/justinas/alice"
)

func router(config *Global) http.Handler {
	router := mux.NewRouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	h := handler{Global: config, router: router}

	GET.HandleFunc("/", h.Index).Name("index")
	GET.HandleFunc("/version", h.Version)
	GET.HandleFunc("/datasets", h.Datasets).Name("datasets")
	GET.HandleFunc("/complete", h.Complete)
	GET.HandleFunc("/datasets/{id:GDS[0-9]+}", h.Dataset).Name("dataset")
	GET.HandleFunc("/datasets/{id:GDS[0-9]+}/table", h.Table).Name("table")

	standard := alice.New(
		// Log all requests to STDOUT
		middleware.GorillaLog(),
	)

	return standard.Then(router)
}
