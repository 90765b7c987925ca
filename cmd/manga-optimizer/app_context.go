package main

import (
	"time"

	"github.com/gorilla/sessions"

	"manga-optimizer/cmd/manga-optimizer/handlers"
	"manga-optimizer/cmd/manga-optimizer/utils"
	"manga-optimizer/internal"
	"manga-optimizer/internal/cache"
)

// AppContext holds all the application state and dependencies
type AppContext struct {
	// Configuration
	Config *utils.AppConfig

	// Core services
	RunManager   *internal.RunManager
	SessionStore *sessions.CookieStore
	Settings     *cache.SettingsCache

	// State
	AppState  *handlers.AppState
	StartTime time.Time

	// Handlers
	LibraryHandler *handlers.LibraryHandler
	RunHandler     *handlers.RunHandler
}

// NewAppContext creates a new application context with all dependencies initialized
func NewAppContext(config *utils.AppConfig) (*AppContext, error) {
	settings := cache.New(config.DataDir)
	if err := settings.Load(); err != nil {
		utils.LogMessage("WARNING", "Could not load series settings cache: "+err.Error())
	}

	ctx := &AppContext{
		Config:       config,
		RunManager:   internal.NewRunManager(config.DataDir),
		SessionStore: sessions.NewCookieStore([]byte(config.SessionKey)),
		Settings:     settings,
		AppState:     &handlers.AppState{},
		StartTime:    time.Now(),
	}

	ctx.LibraryHandler = &handlers.LibraryHandler{
		State:  ctx.AppState,
		Logger: utils.LogMessage,
	}
	ctx.RunHandler = &handlers.RunHandler{
		State:        ctx.AppState,
		RunManager:   ctx.RunManager,
		SessionStore: ctx.SessionStore,
		Settings:     ctx.Settings,
		StagingRoot:  config.StagingRoot,
		Parallelism:  config.Parallelism,
		Logger:       utils.LogMessage,
	}

	return ctx, nil
}
