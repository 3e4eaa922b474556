/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"templatecanvas/internal/binding"
	"templatecanvas/internal/catalog"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/export"
	"templatecanvas/internal/psd"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/session"
	"templatecanvas/internal/storage"
	"templatecanvas/internal/workspace"
)

var errBodyRequired = errors.New("body required")

func fail(c fiber.Ctx, code int, err error) error {
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func decode(c fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return errBodyRequired
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

// reply answers with the current state; warnings is never null.
func (s *Server) reply(c fiber.Ctx, warnings []string) error {
	if warnings == nil {
		warnings = []string{}
	}
	return c.JSON(fiber.Map{"state": s.ws.Session.State(), "warnings": warnings})
}

func (s *Server) getState(c fiber.Ctx) error {
	return c.JSON(s.ws.Session.State())
}

func (s *Server) getTemplate(c fiber.Ctx) error {
	if s.ws.Session.State().Status == session.StatusUninitialized {
		return fail(c, fiber.StatusNotFound, errors.New("no template loaded"))
	}
	return c.JSON(s.ws.Session.CurrentTemplate())
}

func (s *Server) loadTemplate(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fail(c, fiber.StatusBadRequest, errBodyRequired)
	}
	tpl, err := domain.DecodeTemplate(bytes.NewReader(c.Body()))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.load(c, tpl)
}

func (s *Server) load(c fiber.Ctx, tpl *domain.Template) error {
	warnings, err := s.ws.Load(c.Context(), tpl)
	if err != nil {
		s.log.Error("load failed", "template", tpl.ID, "err", err)
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return s.reply(c, warnings)
}

func (s *Server) importLayers(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fail(c, fiber.StatusBadRequest, errBodyRequired)
	}
	tpl, err := s.ws.ImportLayers(c.Context(), bytes.NewReader(c.Body()))
	if err != nil {
		code := fiber.StatusInternalServerError
		if errors.Is(err, psd.ErrMalformed) {
			code = fiber.StatusBadRequest
		}
		return fail(c, code, err)
	}
	return s.load(c, tpl)
}

type textRequest struct {
	Text     string  `json:"text"`
	Fill     string  `json:"fill"`
	FontSize float64 `json:"fontSize"`
}

func (s *Server) addText(c fiber.Ctx) error {
	var req textRequest
	if len(c.Body()) > 0 {
		if err := decode(c, &req); err != nil {
			return fail(c, fiber.StatusBadRequest, err)
		}
	}
	w := s.ws.Session.AddText(c.Context(), req.Text, session.TextOptions{Fill: req.Fill, FontSize: req.FontSize})
	return s.reply(c, w)
}

type imageRequest struct {
	Src    string  `json:"src"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) addImage(c fiber.Ctx) error {
	var req imageRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.Src == "" {
		return fail(c, fiber.StatusBadRequest, errors.New("src required"))
	}
	return s.reply(c, s.ws.Session.AddImage(c.Context(), req.Src, req.Width, req.Height))
}

type shapeRequest struct {
	Kind   string  `json:"kind"`
	Fill   string  `json:"fill"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Radius float64 `json:"radius"`
}

func (s *Server) addShape(c fiber.Ctx) error {
	var req shapeRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	err := s.ws.Session.AddShape(req.Kind, session.ShapeOptions{Fill: req.Fill, Width: req.Width, Height: req.Height, Radius: req.Radius})
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.reply(c, nil)
}

type scaleRequest struct {
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
}

func (s *Server) scaleObject(c fiber.Ctx) error {
	var req scaleRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	name := c.Params("name")
	found := false
	s.ws.Session.View(func(r scene.Renderer) { found = scene.Find(r, name) != nil })
	if !found {
		return fail(c, fiber.StatusNotFound, fmt.Errorf("object %q not found", name))
	}
	s.ws.Session.ScaleObject(name, req.ScaleX, req.ScaleY)
	return s.reply(c, nil)
}

type selectRequest struct {
	Names []string `json:"names"`
}

func (s *Server) selectObjects(c fiber.Ctx) error {
	var req selectRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	s.ws.Session.Select(req.Names...)
	return s.reply(c, nil)
}

func (s *Server) deselect(c fiber.Ctx) error {
	s.ws.Session.Deselect()
	return s.reply(c, nil)
}

type dimensionRequest struct {
	Property string  `json:"property"`
	Value    float64 `json:"value"`
}

func (s *Server) changeDimensions(c fiber.Ctx) error {
	var req dimensionRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	s.ws.Session.ChangeObjectDimensions(req.Property, req.Value)
	return s.reply(c, nil)
}

type propertyRequest struct {
	// Kind picks the command: text, image or shape.
	Kind     string `json:"kind"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

func (s *Server) changeProperty(c fiber.Ctx) error {
	var req propertyRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	var err error
	switch req.Kind {
	case "text", "":
		err = s.ws.Session.ChangeTextProperty(req.Property, req.Value)
	case "image":
		err = s.ws.Session.ChangeImageProperty(req.Property, req.Value)
	case "shape":
		err = s.ws.Session.ChangeShapeProperty(req.Property, req.Value)
	default:
		err = fmt.Errorf("unknown kind %q", req.Kind)
	}
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.reply(c, nil)
}

type fontRequest struct {
	Family string `json:"family"`
}

func (s *Server) changeFont(c fiber.Ctx) error {
	var req fontRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.reply(c, s.ws.Session.ChangeFontFamily(c.Context(), req.Family))
}

func (s *Server) changeSource(c fiber.Ctx) error {
	var req imageRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.reply(c, s.ws.Session.ChangeImageSource(c.Context(), req.Src))
}

type layerRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) changeLayer(c fiber.Ctx) error {
	var req layerRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if err := s.ws.Session.ChangeObjectLayer(req.Direction); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	return s.reply(c, nil)
}

func (s *Server) deleteObject(c fiber.Ctx) error {
	s.ws.Session.DeleteObject()
	return s.reply(c, nil)
}

func (s *Server) clipboard(c fiber.Ctx) error {
	switch op := c.Params("op"); op {
	case "copy":
		s.ws.Session.Copy()
	case "cut":
		s.ws.Session.Cut()
	case "paste":
		s.ws.Session.Paste()
	case "duplicate":
		s.ws.Session.Duplicate()
	default:
		return fail(c, fiber.StatusNotFound, fmt.Errorf("unknown clipboard operation %q", op))
	}
	return s.reply(c, nil)
}

func (s *Server) undo(c fiber.Ctx) error {
	if err := s.ws.Session.Undo(c.Context()); err != nil {
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return s.reply(c, nil)
}

func (s *Server) redo(c fiber.Ctx) error {
	if err := s.ws.Session.Redo(c.Context()); err != nil {
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return s.reply(c, nil)
}

type backgroundRequest struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

func (s *Server) changeBackground(c fiber.Ctx) error {
	var req backgroundRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	kind := domain.BackgroundKind(req.Type)
	if kind != domain.BackgroundColor && kind != domain.BackgroundImage {
		return fail(c, fiber.StatusBadRequest, fmt.Errorf("unknown background type %q", req.Type))
	}
	s.ws.Session.ChangeBackground(kind, req.Source)
	return s.reply(c, nil)
}

type canvasRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) changeCanvas(c fiber.Ctx) error {
	var req canvasRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return fail(c, fiber.StatusBadRequest, errors.New("width and height must be positive"))
	}
	s.ws.Session.ChangeDimensions(req.Width, req.Height)
	return s.reply(c, nil)
}

func (s *Server) getBindings(c fiber.Ctx) error {
	return c.JSON(s.ws.Session.Bindings())
}

type bindingRequest struct {
	Expression string `json:"expression"`
}

func (s *Server) setBinding(c fiber.Ctx) error {
	var req bindingRequest
	if err := decode(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	s.ws.Session.SetBinding(c.Params("name"), req.Expression)
	return s.reply(c, nil)
}

func (s *Server) clearBinding(c fiber.Ctx) error {
	s.ws.Session.ClearBinding(c.Params("name"))
	return s.reply(c, nil)
}

func (s *Server) replyReport(c fiber.Ctx, rep binding.Report) error {
	applied := rep.Applied
	if applied == nil {
		applied = []string{}
	}
	warnings := rep.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return c.JSON(fiber.Map{"state": s.ws.Session.State(), "applied": applied, "warnings": warnings})
}

func (s *Server) applyData(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fail(c, fiber.StatusBadRequest, errBodyRequired)
	}
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return fail(c, fiber.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
	}
	return s.replyReport(c, s.ws.Apply(c.Context(), record))
}

func (s *Server) listRecords(c fiber.Ctx) error {
	if s.records == nil {
		return fail(c, fiber.StatusServiceUnavailable, catalog.ErrNoSource)
	}
	recs, err := s.records.Records(c.Context())
	if err != nil {
		return fail(c, fiber.StatusBadGateway, err)
	}
	return c.JSON(recs)
}

func (s *Server) applyRecord(c fiber.Ctx) error {
	if s.records == nil {
		return fail(c, fiber.StatusServiceUnavailable, catalog.ErrNoSource)
	}
	recs, err := s.records.Records(c.Context())
	if err != nil {
		return fail(c, fiber.StatusBadGateway, err)
	}
	id := c.Params("id")
	for _, r := range recs {
		if r.ID == id {
			return s.replyReport(c, s.ws.Apply(c.Context(), r.Data))
		}
	}
	return fail(c, fiber.StatusNotFound, fmt.Errorf("record %q not found", id))
}

func (s *Server) exportScene(c fiber.Ctx) error {
	f, err := export.ParseFormat(c.Params("format"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	opt := s.ws.ExportOptions()
	if q := c.Query("scale"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || v <= 0 || v > 8 {
			return fail(c, fiber.StatusBadRequest, fmt.Errorf("invalid scale %q", q))
		}
		opt.Scale = v
	}
	var buf bytes.Buffer
	werr := errors.New("no scene attached")
	s.ws.Session.View(func(r scene.Renderer) { werr = export.Write(c.Context(), &buf, f, r, opt) })
	if werr != nil {
		return fail(c, fiber.StatusInternalServerError, werr)
	}
	c.Set("Content-Type", f.ContentType())
	return c.Send(buf.Bytes())
}

func (s *Server) persist(c fiber.Ctx) error {
	if err := s.ws.Autosave(c.Context()); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{"persisted": true})
}

func (s *Server) restore(c fiber.Ctx) error {
	if s.ws.Store == nil {
		return s.storeError(c, workspace.ErrNoStore)
	}
	ok, err := s.ws.Session.Restore(c.Context(), s.ws.Store)
	if err != nil {
		if errors.Is(err, session.ErrEphemeralState) {
			return fail(c, fiber.StatusConflict, err)
		}
		return fail(c, fiber.StatusInternalServerError, err)
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, errors.New("no persisted session"))
	}
	return s.reply(c, nil)
}

func (s *Server) revert(c fiber.Ctx) error {
	warnings, err := s.ws.Revert(c.Context())
	if err != nil {
		return s.storeError(c, err)
	}
	return s.reply(c, warnings)
}

func (s *Server) storeError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workspace.ErrNoStore):
		return fail(c, fiber.StatusServiceUnavailable, err)
	case errors.Is(err, storage.ErrTemplateNotFound):
		return fail(c, fiber.StatusNotFound, err)
	}
	return fail(c, fiber.StatusInternalServerError, err)
}

func (s *Server) listTemplates(c fiber.Ctx) error {
	if s.ws.Store == nil {
		return s.storeError(c, workspace.ErrNoStore)
	}
	infos, err := s.ws.Store.Templates(c.Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if infos == nil {
		infos = []storage.TemplateInfo{}
	}
	return c.JSON(infos)
}

func (s *Server) saveTemplate(c fiber.Ctx) error {
	tpl, err := s.ws.SaveTemplate(c.Context())
	if err != nil {
		if errors.Is(err, workspace.ErrNoStore) {
			return s.storeError(c, err)
		}
		return fail(c, fiber.StatusConflict, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": tpl.ID, "elements": len(tpl.State)})
}

func (s *Server) storedTemplate(c fiber.Ctx) error {
	if s.ws.Store == nil {
		return s.storeError(c, workspace.ErrNoStore)
	}
	tpl, err := s.ws.Store.Template(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(tpl)
}

func (s *Server) loadStoredTemplate(c fiber.Ctx) error {
	if s.ws.Store == nil {
		return s.storeError(c, workspace.ErrNoStore)
	}
	tpl, err := s.ws.Store.Template(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return s.load(c, tpl)
}

func (s *Server) deleteTemplate(c fiber.Ctx) error {
	if s.ws.Store == nil {
		return s.storeError(c, workspace.ErrNoStore)
	}
	if err := s.ws.Store.DeleteTemplate(c.Context(), c.Params("id")); err != nil {
		return s.storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
