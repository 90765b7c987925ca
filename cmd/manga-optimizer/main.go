package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"manga-optimizer/cmd/manga-optimizer/utils"
)

// main is the entry point of the application
func main() {
	appConfig, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, err := NewAppContext(appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	log.Printf("Starting with configuration: StagingRoot=%s DataDir=%s", appConfig.StagingRoot, appConfig.DataDir)

	r := mux.NewRouter()
	RegisterRoutes(r, ctx)

	log.Printf("Starting server on port %s", appConfig.Port)
	if err := http.ListenAndServe(":"+appConfig.Port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
