package session

import (
	"context"
	"time"

	"phelnav/internal/engine/index"
	"phelnav/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionID  string            `json:"session_id"`
	Index      index.Stats       `json:"index"`
	HeapMB     uint64            `json:"heap_mb"`
	Components map[string]string `json:"components"`
}

func (s *Session) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		SessionID:  s.ID,
		Index:      s.Index.Stats(),
		HeapMB:     util.HeapAllocMB(),
		Components: make(map[string]string),
	}

	if status.Index.Built {
		status.Components["index"] = "ok"
	} else {
		status.Status = "starting"
		status.Components["index"] = "building"
	}

	s.mu.Lock()
	watching, closed := s.fsWatcher != nil, s.closed
	s.mu.Unlock()
	if watching {
		status.Components["watcher"] = "ok"
	} else {
		status.Components["watcher"] = "off"
	}
	if closed {
		status.Status = "down"
	}
	if err := ctx.Err(); err != nil {
		status.Status = "degraded"
		status.Components["request"] = err.Error()
	}
	return status
}
