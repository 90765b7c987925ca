package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouteConfig holds information for registering a route
type RouteConfig struct {
	Path    string
	Handler http.HandlerFunc
	Methods []string
}

// RegisterRoutes registers all application routes with the router
func RegisterRoutes(r *mux.Router, ctx *AppContext) {
	routes := []RouteConfig{
		// Library: scan, chapter list and mutation, plan preview
		{"/api/scan", ctx.LibraryHandler.ScanHandler, []string{"POST"}},
		{"/api/chapters", ctx.LibraryHandler.ChaptersHandler, []string{"GET"}},
		{"/api/chapters/{id}/enabled", ctx.LibraryHandler.ChapterEnableHandler, []string{"POST"}},
		{"/api/chapters/{id}/move", ctx.LibraryHandler.ChapterMoveHandler, []string{"POST"}},
		{"/api/plan", ctx.LibraryHandler.PlanHandler, []string{"POST"}},

		// Pipeline runs
		{"/api/run", ctx.RunHandler.StartRunHandler, []string{"POST"}},
		{"/api/runs", ctx.RunHandler.RunsHandler, []string{"GET"}},
		{"/api/runs/{id}", ctx.RunHandler.RunDetailHandler, []string{"GET"}},
		{"/api/runs/{id}/cancel", ctx.RunHandler.RunCancelHandler, []string{"POST"}},

		// Live preview and settings
		{"/api/preview", ctx.RunHandler.PreviewHandler, []string{"POST"}},
		{"/api/settings", ctx.RunHandler.SettingsGetHandler, []string{"GET"}},
		{"/api/settings", ctx.RunHandler.SettingsSaveHandler, []string{"POST"}},
	}

	for _, route := range routes {
		r.HandleFunc(route.Path, route.Handler).Methods(route.Methods...)
	}
}
