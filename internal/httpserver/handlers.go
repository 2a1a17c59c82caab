package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/waddu20-ops/SmartDo/internal/assistant"
	"github.com/waddu20-ops/SmartDo/internal/store"
)

// Handlers carries the route dependencies.
type Handlers struct {
	store      *store.Store
	gen        Generator
	hub        *Hub
	newChannel func() assistant.Channel
	log        zerolog.Logger
}

// NewHandlers wires handler dependencies.
func NewHandlers(deps Deps) Handlers {
	return Handlers{
		store:      deps.Store,
		gen:        deps.Gen,
		hub:        deps.Hub,
		newChannel: deps.NewChannel,
		log:        deps.Logger,
	}
}

// Register mounts all routes.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/tasks", h.listTasks)
	e.POST("/tasks", h.createTask)
	e.GET("/tasks/:id", h.getTask)
	e.PATCH("/tasks/:id", h.updateTask)
	e.DELETE("/tasks/:id", h.deleteTask)
	e.POST("/tasks/:id/subtasks", h.addSubtask)
	e.PATCH("/tasks/:id/subtasks/:sid", h.updateSubtask)
	e.POST("/tasks/:id/breakdown", h.breakdownTask)
	e.POST("/tasks/:id/tip", h.wateringTip)

	e.GET("/suggestion", h.suggestion)
	e.GET("/reflection", h.reflection)

	e.GET("/voice", h.voice)
	if h.hub != nil {
		e.GET("/notifications", h.hub.Serve)
	}
}

type createTaskRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DueDate         string `json:"dueDate"`
	Priority        string `json:"priority"`
	ReminderMinutes *int   `json:"reminderMinutes"`
}

func (h Handlers) listTasks(c echo.Context) error {
	tasks, err := h.store.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h Handlers) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	task := store.NewTask(req.Title)
	task.Description = strings.TrimSpace(req.Description)
	if req.Priority != "" {
		task.Priority = store.ParsePriority(req.Priority)
	}
	if req.DueDate != "" {
		due, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "dueDate must be RFC 3339")
		}
		task.DueDate = &due
		mins := 15
		if req.ReminderMinutes != nil {
			mins = *req.ReminderMinutes
		}
		task.ReminderMinutes = &mins
	}
	h.categorize(c.Request().Context(), task)

	if err := h.store.Put(task); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, task)
}

// categorize fills zone and energy, best-effort.
func (h Handlers) categorize(ctx context.Context, task *store.Task) {
	if h.gen == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	zone, energy, err := h.gen.Categorize(ctx, task.Title)
	if err != nil {
		h.log.Warn().Err(err).Msg("categorize failed, using defaults")
		return
	}
	task.Zone = store.ParseZone(zone)
	task.EnergyLevel = store.ParseEnergy(energy)
}

func (h Handlers) getTask(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Completed       *bool   `json:"completed"`
	Priority        *string `json:"priority"`
	Zone            *string `json:"zone"`
	EnergyLevel     *string `json:"energyLevel"`
	DueDate         *string `json:"dueDate"`
	ReminderMinutes *int    `json:"reminderMinutes"`
}

func (h Handlers) updateTask(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "title cannot be empty")
		}
		task.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	if req.Priority != nil {
		task.Priority = store.ParsePriority(*req.Priority)
	}
	if req.Zone != nil {
		task.Zone = store.ParseZone(*req.Zone)
	}
	if req.EnergyLevel != nil {
		task.EnergyLevel = store.ParseEnergy(*req.EnergyLevel)
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			task.DueDate = nil
			task.ReminderMinutes = nil
		} else {
			due, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "dueDate must be RFC 3339")
			}
			task.DueDate = &due
			// a moved deadline may need to notify again
			task.Notified = false
		}
	}
	if req.ReminderMinutes != nil {
		task.ReminderMinutes = req.ReminderMinutes
	}
	if err := h.store.Put(task); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

func (h Handlers) deleteTask(c echo.Context) error {
	if _, err := h.store.Get(c.Param("id")); err != nil {
		return taskError(err)
	}
	if err := h.store.Delete(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type subtaskRequest struct {
	Title     string `json:"title"`
	Completed *bool  `json:"completed"`
}

func (h Handlers) addSubtask(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	var req subtaskRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subtask title is required")
	}
	task.Subtasks = append(task.Subtasks, store.NewSubtask(req.Title))
	if err := h.store.Put(task); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

func (h Handlers) updateSubtask(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	var req subtaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	sid := c.Param("sid")
	found := false
	for i := range task.Subtasks {
		if task.Subtasks[i].ID != sid {
			continue
		}
		found = true
		if req.Title != "" {
			task.Subtasks[i].Title = strings.TrimSpace(req.Title)
		}
		if req.Completed != nil {
			task.Subtasks[i].Completed = *req.Completed
		}
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "subtask not found")
	}
	if err := h.store.Put(task); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

func (h Handlers) breakdownTask(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	if h.gen != nil {
		steps, err := h.gen.Breakdown(c.Request().Context(), task.Title)
		if err != nil {
			// same shape as a breakdown that produced no steps
			h.log.Warn().Err(err).Str("task", task.ID).Msg("breakdown failed")
		}
		for _, step := range steps {
			task.Subtasks = append(task.Subtasks, store.NewSubtask(step))
		}
		if len(steps) > 0 {
			if err := h.store.Put(task); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
		}
	}
	return c.JSON(http.StatusOK, task)
}

func (h Handlers) wateringTip(c echo.Context) error {
	task, err := h.store.Get(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	tip := "Just take one deep breath and set a timer for 2 minutes."
	if h.gen != nil {
		if t, err := h.gen.WateringTip(c.Request().Context(), task.Title); err == nil && t != "" {
			tip = t
		} else if err != nil {
			h.log.Warn().Err(err).Msg("watering tip failed, using fallback")
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"tip": tip})
}

func (h Handlers) suggestion(c echo.Context) error {
	suggestion := "Take a deep breath. You've got this."
	if h.gen != nil {
		pending, err := h.pendingTitles()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if s, err := h.gen.KindSuggestion(c.Request().Context(), pending); err == nil && s != "" {
			suggestion = s
		} else if err != nil {
			h.log.Warn().Err(err).Msg("suggestion failed, using fallback")
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"suggestion": suggestion})
}

func (h Handlers) reflection(c echo.Context) error {
	reflection := "Your garden is beautiful just as it is. Every seed has its own time to bloom."
	if h.gen != nil {
		tasks, err := h.store.List()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		var completed, pending []string
		for _, t := range tasks {
			if t.Completed {
				completed = append(completed, t.Title)
			} else {
				pending = append(pending, t.Title)
			}
		}
		if r, err := h.gen.DailyReflection(c.Request().Context(), completed, pending); err == nil && r != "" {
			reflection = r
		} else if err != nil {
			h.log.Warn().Err(err).Msg("reflection failed, using fallback")
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"reflection": reflection})
}

func (h Handlers) pendingTitles() ([]string, error) {
	tasks, err := h.store.List()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, t := range tasks {
		if !t.Completed {
			pending = append(pending, t.Title)
		}
	}
	return pending, nil
}

func taskError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
