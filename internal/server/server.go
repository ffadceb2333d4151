// Package server exposes the HTTP trigger surface for workflow runs.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/version"
	"github.com/developiq/northstar/internal/workflow"
)

type HTTPServerDependencies struct {
	Config *config.Config
	Runner WorkflowRunner
	Store  TokenInfoProvider

	// Tracker is nil when no database is configured; the stats endpoint
	// reports accordingly.
	Tracker TrackerStats
}

// TrackerStats is the read side of the email tracker.
type TrackerStats interface {
	Stats(ctx context.Context) (map[string]int64, error)
	RecentSends(ctx context.Context, limit int) ([]domain.EmailAttempt, error)
}

// WorkflowRunner executes one workflow run per call.
type WorkflowRunner interface {
	Run(ctx context.Context, opts workflow.RunOptions) (*workflow.State, error)
}

// TokenInfoProvider reports token store state without decrypting anything.
type TokenInfoProvider interface {
	Info(provider domain.Provider) (exists bool, updatedAt time.Time)
}

type runRequest struct {
	Days      []int  `json:"days"`
	ProjectID string `json:"project_id"`
}

type runResponse struct {
	WorkflowSuccessful bool   `json:"workflow_successful"`
	ResultMessage      string `json:"result_message"`
	ErrorMessage       string `json:"error_message,omitempty"`
	ProjectsFound      int    `json:"projects_found"`
	EmailsSent         int    `json:"emails_sent"`
	Timestamp          string `json:"timestamp"`
}

func NewHTTPServer(ctx context.Context, deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "northstar",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"service":     "northstar",
			"description": "Bid reminder service for BuildingConnected projects",
			"version":     version.GetVersion(),
		})
	})

	router.Get("/health", func(c fiber.Ctx) error {
		msReady, _ := deps.Store.Info(domain.ProviderMicrosoft)
		adskReady, _ := deps.Store.Info(domain.ProviderAutodesk)

		status := "healthy"
		code := fiber.StatusOK
		if !msReady || !adskReady {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":              status,
			"service":             "northstar",
			"version":             version.GetVersion(),
			"microsoft_token":     msReady,
			"autodesk_token":      adskReady,
			"database_configured": deps.Config.DatabaseURL != "",
			"timestamp":           time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Get("/email-stats", func(c fiber.Ctx) error {
		if deps.Tracker == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "email tracking is not configured",
			})
		}

		stats, err := deps.Tracker.Stats(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		recent, err := deps.Tracker.RecentSends(c.Context(), 25)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"totals_by_status": stats,
			"recent_sends":     recent,
		})
	})

	router.Post("/run-bid-reminder", func(c fiber.Ctx) error {
		var req runRequest
		if len(c.Body()) > 0 {
			if err := c.Bind().Body(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid request body",
				})
			}
		}

		state, err := deps.Runner.Run(c.Context(), workflow.RunOptions{
			Days:      req.Days,
			ProjectID: req.ProjectID,
		})
		if err != nil {
			log.Error().Err(err).Msg("Workflow run could not be constructed")
			return c.Status(fiber.StatusInternalServerError).JSON(runResponse{
				WorkflowSuccessful: false,
				ErrorMessage:       err.Error(),
				Timestamp:          time.Now().UTC().Format(time.RFC3339),
			})
		}

		return c.Status(fiber.StatusOK).JSON(runResponse{
			WorkflowSuccessful: state.Success,
			ResultMessage:      state.ResultMessage,
			ErrorMessage:       state.ErrorMessage,
			ProjectsFound:      len(state.Projects),
			EmailsSent:         state.EmailsSent(),
			Timestamp:          state.FinishedAt.Format(time.RFC3339),
		})
	})

	return router
}
