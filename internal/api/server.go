package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/captioner/internal/beam"
	"github.com/samcharles93/captioner/internal/version"
)

// MaxRequestBytes caps the body of POST /v1/captions.
const MaxRequestBytes = 1 << 20

type Server struct {
	store   *CaptionStore
	service *CaptionService
}

func NewServer(store *CaptionStore, service *CaptionService) *Server {
	if store == nil {
		store = NewCaptionStore(0)
	}
	return &Server{
		store:   store,
		service: service,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/captions", s.handleCreateCaption)
	e.GET("/v1/captions/:id", s.handleGetCaption)
	e.DELETE("/v1/captions/:id", s.handleDeleteCaption)
	e.GET("/v1/models", s.handleListModels)

	e.GET("/healthz", handleHealth)
	metricsHandler := promhttp.Handler()
	e.GET("/metrics", func(c *echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (s *Server) handleCreateCaption(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "caption service not configured", "", "")
	}
	body := http.MaxBytesReader(c.Response(), c.Request().Body, MaxRequestBytes)
	req, err := decodeJSON[CaptionRequest](body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "", "request_too_large")
		}
		return writeBadRequest(c, err.Error())
	}

	resp, err := s.service.CreateCaption(c.Request().Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			return writeBadRequest(c, err.Error())
		case errors.Is(err, ErrModelNotFound):
			return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "model", "model_not_found")
		case errors.Is(err, beam.ErrExhausted):
			return writeError(c, http.StatusUnprocessableEntity, "search_error", err.Error(), "", "exhausted")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return writeError(c, http.StatusServiceUnavailable, "server_error", err.Error(), "", "cancelled")
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	s.store.Save(*resp)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetCaption(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeNotFound(c, "caption not found")
	}
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "caption not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteCaption(c *echo.Context) error {
	id := c.Param("id")
	if id == "" || !s.store.Delete(id) {
		return writeNotFound(c, "caption not found")
	}
	return c.JSON(http.StatusOK, DeleteCaptionResponse{
		ID:      id,
		Object:  "caption",
		Deleted: true,
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "caption service not configured", "", "")
	}
	infos, err := s.service.Models()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, ModelsResponse{Object: "list", Data: infos})
}

func handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Resolve(),
	})
}
