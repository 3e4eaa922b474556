/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package server exposes one editing workspace over a JSON HTTP API. Every
// mutating route answers with the fresh session state and any warnings.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"templatecanvas/internal/catalog"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/version"
	"templatecanvas/internal/workspace"
)

// Options tune the HTTP layer. Zero values are usable.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AccessLog enables the per-request log line.
	AccessLog bool
	// BodyLimit caps request bodies; layer documents carry inline rasters.
	BodyLimit int
}

// Server routes HTTP requests to a workspace. Records is optional; without
// it the record routes answer 503.
type Server struct {
	ws      *workspace.Workspace
	records catalog.Source
	app     *fiber.App
	log     *slog.Logger
}

// New builds the fiber app and registers every route.
func New(ws *workspace.Workspace, records catalog.Source, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 64 << 20
	}
	// Immutable: object names and binding keys from params outlive the request.
	app := fiber.New(fiber.Config{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		BodyLimit:    opts.BodyLimit,
		Immutable:    true,
		AppName:      version.String(),
	})
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	s := &Server{ws: ws, records: records, app: app, log: applog.WithComponent("server")}
	s.routes()
	return s
}

// App returns the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.log.Info("listening", slog.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(sctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	app := s.app
	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})
	app.Get("/health/ready", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready", "version": version.String()})
	})

	api := app.Group("/api")
	api.Get("/state", s.getState)
	api.Get("/template", s.getTemplate)
	api.Post("/template", s.loadTemplate)
	api.Post("/import", s.importLayers)

	api.Post("/text", s.addText)
	api.Post("/images", s.addImage)
	api.Post("/shapes", s.addShape)
	api.Post("/objects/:name/scale", s.scaleObject)

	api.Put("/selection", s.selectObjects)
	api.Delete("/selection", s.deselect)
	api.Post("/selection/dimensions", s.changeDimensions)
	api.Post("/selection/properties", s.changeProperty)
	api.Post("/selection/font", s.changeFont)
	api.Post("/selection/source", s.changeSource)
	api.Post("/selection/layer", s.changeLayer)
	api.Post("/selection/delete", s.deleteObject)
	api.Post("/clipboard/:op", s.clipboard)

	api.Post("/undo", s.undo)
	api.Post("/redo", s.redo)
	api.Put("/background", s.changeBackground)
	api.Put("/dimensions", s.changeCanvas)

	api.Get("/bindings", s.getBindings)
	api.Put("/bindings/:name", s.setBinding)
	api.Delete("/bindings/:name", s.clearBinding)
	api.Post("/data", s.applyData)
	api.Get("/records", s.listRecords)
	api.Post("/records/:id/apply", s.applyRecord)

	api.Get("/export/:format", s.exportScene)

	api.Post("/session/persist", s.persist)
	api.Post("/session/restore", s.restore)
	api.Post("/template/revert", s.revert)
	api.Get("/templates", s.listTemplates)
	api.Post("/templates", s.saveTemplate)
	api.Get("/templates/:id", s.storedTemplate)
	api.Post("/templates/:id/load", s.loadStoredTemplate)
	api.Delete("/templates/:id", s.deleteTemplate)
}
