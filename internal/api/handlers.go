package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/history"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/patch"
	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/segmenter"
)

type ConvertRequest struct {
	Source      string `json:"source"`
	GroundTruth string `json:"ground_truth,omitempty"`
	Name        string `json:"name,omitempty"`
	// Mode and MaxIterations override the server defaults when set.
	Mode          string `json:"mode,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type ConvertResponse struct {
	RunID  string             `json:"run_id,omitempty"`
	Result *refine.FileResult `json:"result"`
}

type SegmentRequest struct {
	Source string `json:"source"`
}

type SegmentResponse struct {
	Units    []segmenter.SourceUnit `json:"units"`
	Verified bool                   `json:"verified"`
}

type DiffRequest struct {
	Original  string `json:"original"`
	Candidate string `json:"candidate"`
	// Whole expresses the change as a single hunk spanning the whole text.
	Whole bool `json:"whole,omitempty"`
}

type DiffResponse struct {
	Diff  string `json:"diff"`
	Hunks int    `json:"hunks"`
}

type ApplyRequest struct {
	Original string `json:"original"`
	Diff     string `json:"diff"`
}

type ApplyResponse struct {
	Result  string `json:"result"`
	Hunks   int    `json:"hunks"`
	Applied bool   `json:"applied"`
}

func (s *Server) convert(c echo.Context) error {
	var req ConvertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Source) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source is required")
	}

	cfg := s.base
	if req.Mode != "" {
		mode, err := refine.ParseMode(req.Mode)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		cfg.Mode = mode
	}
	if req.MaxIterations != 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv, err := s.build(cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	ctx := c.Request().Context()
	fr, err := conv.ConvertFile(ctx, req.Source, req.GroundTruth)
	if err != nil {
		return conversionError(err)
	}

	resp := ConvertResponse{Result: fr}
	if s.recorder != nil {
		meta := s.meta
		meta.SourceName = req.Name
		runID, err := history.Record(ctx, s.recorder, meta, fr)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to record run")
		}
		resp.RunID = runID
	}
	return c.JSON(http.StatusOK, resp)
}

func conversionError(err error) error {
	var perr *segmenter.ParseError
	switch {
	case errors.As(err, &perr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, perr.Error())
	case errors.Is(err, refine.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case llm.IsUnavailable(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) segment(c echo.Context) error {
	var req SegmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	units, err := segmenter.Split(c.Request().Context(), req.Source)
	if err != nil {
		return conversionError(err)
	}
	return c.JSON(http.StatusOK, SegmentResponse{
		Units:    units,
		Verified: segmenter.Verify(req.Source, units) == nil,
	})
}

func (s *Server) buildDiff(c echo.Context) error {
	var req DiffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	original := patch.SplitLines(req.Original)
	candidate := patch.SplitLines(req.Candidate)
	var diff string
	if req.Whole {
		diff = patch.BuildPatch(original, candidate)
	} else {
		diff = patch.BuildDiff(original, candidate)
	}
	return c.JSON(http.StatusOK, DiffResponse{Diff: diff, Hunks: patch.HunkCount(diff)})
}

func (s *Server) applyPatch(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	hunks := patch.HunkCount(req.Diff)
	result := strings.Join(patch.ApplyDiff(patch.SplitLines(req.Original), req.Diff), "\n")
	if strings.HasSuffix(req.Original, "\n") && result != "" {
		result += "\n"
	}
	return c.JSON(http.StatusOK, ApplyResponse{Result: result, Hunks: hunks, Applied: hunks > 0})
}
