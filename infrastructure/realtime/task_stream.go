package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"reelpipe/domain/dto"
	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

const DefaultPollInterval = time.Second

// TaskSource returns the current snapshot of a task.
type TaskSource func(ctx context.Context, id string) (*dto.TaskProgressResponse, error)

// TaskStream pushes task snapshots over SSE until the task reaches a
// terminal status or the client goes away. It polls the task store.
type TaskStream struct {
	source   TaskSource
	interval time.Duration
}

func NewTaskStream(source TaskSource, interval time.Duration) *TaskStream {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &TaskStream{source: source, interval: interval}
}

// Serve handles GET /tasks/:id/stream.
func (s *TaskStream) Serve(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	first, err := s.source(ctx, id)
	if errors.Is(err, model.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	last := ""
	snap := first
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if key := snapshotKey(snap); key != last {
			if !writeEvent(c, "task_progress", snap) {
				return
			}
			last = key
		}
		if snap.Status.IsTerminal() {
			writeEvent(c, "task_done", gin.H{"task_id": snap.ID, "status": snap.Status})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.source(ctx, id)
		switch {
		case errors.Is(err, model.ErrTaskNotFound):
			writeEvent(c, "task_done", gin.H{"task_id": id, "status": "deleted"})
			return
		case err != nil:
			if ctx.Err() == nil {
				logger.GetLogger().WithError(err).WithField("task_id", id).Warn("Task stream poll failed")
			}
			continue
		}
		snap = next
	}
}

// snapshotKey changes whenever the row or the derived countdown changes.
func snapshotKey(s *dto.TaskProgressResponse) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func writeEvent(c *gin.Context, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	w := c.Writer
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	w.Flush()
	return true
}
