package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/scheduler"
	"github.com/marketpulse/backend/pkg/logger"
)

type JobRunner interface {
	Trigger(name string) (string, error)
	Jobs() []scheduler.Status
}

type JobsHandler struct {
	runner JobRunner
}

func NewJobsHandler(runner JobRunner) *JobsHandler {
	return &JobsHandler{runner: runner}
}

func (h *JobsHandler) ListJobs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"jobs": h.runner.Jobs(),
	})
}

// RunJob starts the named job in the background. A job that is already
// running is not queued.
func (h *JobsHandler) RunJob(c *fiber.Ctx) error {
	name := c.Params("name")

	runID, err := h.runner.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown job",
		})
	case errors.Is(err, scheduler.ErrJobRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Job is already running",
		})
	case err != nil:
		logger.Error("Failed to trigger job", zap.String("job", name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to trigger job",
		})
	}

	logger.Info("Job triggered manually", zap.String("job", name), zap.String("run_id", runID))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job":    name,
		"run_id": runID,
	})
}
