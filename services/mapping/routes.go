// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapping

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all mapping routes with the router.
//
// Description:
//
//	Registers all /v1/mapping/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	GET  /v1/mapping/ops - Resolve an API query against the corpus
//	POST /v1/mapping/translate - Rewrite a PyTorch source buffer
//	POST /v1/mapping/diagnose - Check a finished translation against the corpus
//	GET  /v1/mapping/models - List registry models with filters
//	GET  /v1/mapping/models/:id - Full record for one model
//	POST /v1/mapping/refresh - Reload corpus and registry snapshots
//	GET  /v1/mapping/health - Health check
//	GET  /v1/mapping/ready - Readiness check
//
// Example:
//
//	service, _ := mapping.NewService(ctx, cfg)
//	handlers := mapping.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	mapping.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	m := rg.Group("/mapping")
	{
		// Corpus queries
		m.GET("/ops", handlers.HandleQueryOps)

		// Translation
		m.POST("/translate", handlers.HandleTranslate)
		m.POST("/diagnose", handlers.HandleDiagnose)

		// Model registry
		m.GET("/models", handlers.HandleListModels)
		m.GET("/models/:id", handlers.HandleGetModel)

		// Snapshot lifecycle
		m.POST("/refresh", handlers.HandleRefresh)

		// Health checks
		m.GET("/health", handlers.HandleHealth)
		m.GET("/ready", handlers.HandleReady)
	}
}
