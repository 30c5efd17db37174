package main

import (
	"github.com/shadecommander/dispatcher/internal/link"
	"github.com/shadecommander/dispatcher/internal/retry"
	"github.com/shadecommander/dispatcher/internal/scene"
)

// DashboardSnapshot is the payload pushed to every dashboard websocket
// client once per second. It aggregates state that otherwise lives behind
// three separate collaborators, the way FluxForge's DashboardService
// aggregates scheduler, store and leadership state into one struct.
type DashboardSnapshot struct {
	LinkState string `json:"link_state"`
	LinkPort  string `json:"link_port"`

	ActiveTasks         int                       `json:"active_tasks"`
	ShadeOwners         int                       `json:"shade_owners"`
	ZombieSuspicious    int                       `json:"zombie_suspicious"`
	ZombieKilled        int                       `json:"zombie_killed"`
	RecentCancellations []retry.CancellationRecord `json:"recent_cancellations"`

	RecentScenes []scene.ExecutionRecord `json:"recent_scenes"`
}

// DashboardService decouples the HTTP and websocket layers from direct
// access to the scheduler, link owner and scene executor.
type DashboardService struct {
	link      *link.Owner
	scheduler *retry.Scheduler
	executor  *scene.Executor
}

func NewDashboardService(l *link.Owner, s *retry.Scheduler, e *scene.Executor) *DashboardService {
	return &DashboardService{link: l, scheduler: s, executor: e}
}

func (d *DashboardService) Snapshot() DashboardSnapshot {
	health := d.link.Health()
	stats := d.scheduler.Stats()

	return DashboardSnapshot{
		LinkState:           health.State.String(),
		LinkPort:            health.Port,
		ActiveTasks:         stats.ActiveTasks,
		ShadeOwners:         len(stats.ShadeOwners),
		ZombieSuspicious:    stats.ZombieSuspicious,
		ZombieKilled:        stats.ZombieKilled,
		RecentCancellations: stats.RecentCancellations,
		RecentScenes:        d.executor.Log().Recent(10),
	}
}
