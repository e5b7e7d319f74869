// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package annotate

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all annotation routes with the router.
//
// Description:
//
//	Registers all /v1/annotate/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Document Endpoints:
//
//	GET    /v1/annotate/documents - List documents
//	PUT    /v1/annotate/documents/:name - Import base annotations
//	GET    /v1/annotate/documents/:name - Document outline
//	DELETE /v1/annotate/documents/:name - Delete a document
//	POST   /v1/annotate/documents/:name/close - Close the session
//	POST   /v1/annotate/documents/:name/save - Save the session
//	GET    /v1/annotate/documents/:name/export - Export without saving
//	GET    /v1/annotate/documents/:name/search - Search transcripts
//
// Editing Endpoints:
//
//	POST /v1/annotate/documents/:name/commands - Apply an edit command
//	POST /v1/annotate/documents/:name/undo - Undo the last command
//	POST /v1/annotate/documents/:name/redo - Redo the last undone command
//	POST /v1/annotate/documents/:name/rank - Rank SNR-bearing groups
//
// Node Endpoints:
//
//	POST /v1/annotate/documents/:name/nodes/:id/toggle - Toggle checked state
//	GET  /v1/annotate/documents/:name/nodes/:id/destinations - Move/copy targets
//	POST /v1/annotate/documents/:name/nodes/:id/play - Play intervals
//	POST /v1/annotate/documents/:name/nodes/:id/transcribe - Transcribe a clip
//	POST /v1/annotate/documents/:name/nodes/:id/label - Suggest and apply a label
//
// Playback Endpoints:
//
//	POST /v1/annotate/documents/:name/pause - Stop playback
//
// Live Session Endpoint:
//
//	GET /v1/annotate/documents/:name/ws - Websocket session
//
// Health Endpoints:
//
//	GET /v1/annotate/health - Health check
//	GET /v1/annotate/ready - Readiness check
//
// Example:
//
//	st, _ := store.Open(store.DefaultConfig())
//	service := annotate.NewService(st, annotate.DefaultServiceConfig())
//	handlers := annotate.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	annotate.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	annotate := rg.Group("/annotate")
	{
		// Document lifecycle
		annotate.GET("/documents", handlers.HandleListDocuments)
		annotate.PUT("/documents/:name", handlers.HandleImportDocument)
		annotate.GET("/documents/:name", handlers.HandleGetDocument)
		annotate.DELETE("/documents/:name", handlers.HandleDeleteDocument)

		documents := annotate.Group("/documents/:name")
		{
			// Session lifecycle
			documents.POST("/close", handlers.HandleCloseDocument)
			documents.POST("/save", handlers.HandleSaveDocument)
			documents.GET("/export", handlers.HandleExportDocument)

			// Editing
			documents.POST("/commands", handlers.HandleCommand)
			documents.POST("/undo", handlers.HandleUndo)
			documents.POST("/redo", handlers.HandleRedo)
			documents.POST("/rank", handlers.HandleRank)

			// Playback
			documents.POST("/pause", handlers.HandlePauseDocument)

			// Transcript search
			documents.GET("/search", handlers.HandleSearch)

			// Live websocket session
			documents.GET("/ws", handlers.HandleSession)

			// Node operations
			nodes := documents.Group("/nodes/:id")
			{
				nodes.POST("/toggle", handlers.HandleToggleNode)
				nodes.GET("/destinations", handlers.HandleNodeDestinations)
				nodes.POST("/play", handlers.HandlePlayNode)
				nodes.POST("/transcribe", handlers.HandleTranscribeNode)
				nodes.POST("/label", handlers.HandleLabelNode)
			}
		}

		// Health checks
		annotate.GET("/health", handlers.HandleHealth)
		annotate.GET("/ready", handlers.HandleReady)
	}
}
