package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

type ExpireInstancesArgs struct{}

func (ExpireInstancesArgs) Kind() string { return "expire_mission_instances" }

// MissionService is the contract the worker needs to expire overdue
// instances.
type MissionService interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ExpireInstancesWorker marks mission instances from past periods as
// expired. Reads also expire lazily, so the sweep only keeps stored
// state close to what readers would derive.
type ExpireInstancesWorker struct {
	river.WorkerDefaults[ExpireInstancesArgs]
	missions MissionService
	log      *slog.Logger
}

func NewExpireInstancesWorker(missions MissionService, log *slog.Logger) *ExpireInstancesWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireInstancesWorker{missions: missions, log: log}
}

func (w *ExpireInstancesWorker) Work(ctx context.Context, job *river.Job[ExpireInstancesArgs]) error {
	n, err := w.missions.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("expire overdue instances: %w", err)
	}
	if n > 0 {
		w.log.Info("expired overdue mission instances", "count", n)
	}
	return nil
}
