package dashboard

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aamonitor/internal/api"
)

// Source is the part of the API client the collector reads.
type Source interface {
	CheckConnection(ctx context.Context) bool
	LastError() string
	Dashboard(ctx context.Context) (api.DashboardPayload, error)
	SystemMetrics(ctx context.Context) (api.SystemMetrics, error)
	AutoAccept(ctx context.Context) (api.AutoAcceptStatus, error)
	TaskStatus(ctx context.Context, id string) (api.Task, error)
}

type Collector struct {
	source  Source
	tracker *TaskTracker
	logger  *zap.Logger
	seq     atomic.Uint64
	now     func() time.Time
}

func NewCollector(source Source, tracker *TaskTracker, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = NewTaskTracker(0)
	}
	return &Collector{
		source:  source,
		tracker: tracker,
		logger:  logger.Named("collector"),
		now:     time.Now,
	}
}

func (c *Collector) Tracker() *TaskTracker { return c.tracker }

// Collect builds one snapshot. It never fails: a failed health check yields
// a disconnected snapshot and any failed section is left absent.
func (c *Collector) Collect(ctx context.Context) *Snapshot {
	snap := &Snapshot{Seq: c.seq.Add(1)}
	defer func() { snap.CollectedAt = c.now() }()

	if !c.source.CheckConnection(ctx) {
		snap.LastError = c.source.LastError()
		return snap
	}
	snap.Connected = true

	var (
		payload    *api.DashboardPayload
		metrics    *api.SystemMetrics
		autoAccept *api.AutoAcceptStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.source.Dashboard(gctx)
		if err != nil {
			c.logger.Debug("dashboard fetch failed", zap.Error(err))
			return nil
		}
		payload = &p
		return nil
	})
	g.Go(func() error {
		m, err := c.source.SystemMetrics(gctx)
		if err != nil {
			c.logger.Debug("metrics fetch failed", zap.Error(err))
			return nil
		}
		metrics = &m
		return nil
	})
	g.Go(func() error {
		a, err := c.source.AutoAccept(gctx)
		if err != nil {
			c.logger.Debug("auto-accept fetch failed", zap.Error(err))
			return nil
		}
		autoAccept = &a
		return nil
	})
	g.Go(func() error {
		c.tracker.Sync(gctx, c.source)
		return nil
	})
	_ = g.Wait()

	if payload != nil {
		snap.Agents = payload.Agents
		snap.Quota = payload.Quota
		snap.Cache = payload.Cache
		snap.Tasks = payload.Tasks
		snap.ProjectName = payload.ProjectName
		if autoAccept == nil {
			autoAccept = payload.AutoAccept
		}
	}
	if len(snap.Tasks) == 0 {
		snap.Tasks = c.tracker.Tasks()
		if snap.ProjectName == "" {
			snap.ProjectName = c.tracker.ProjectName()
		}
	}
	snap.Metrics = metrics
	snap.AutoAccept = autoAccept
	return snap
}

// TaskStatusSource fetches the status of one submitted task.
type TaskStatusSource interface {
	TaskStatus(ctx context.Context, id string) (api.Task, error)
}

const defaultTrackedTasks = 20

// TaskTracker remembers tasks submitted from this client, in submission
// order, for backends whose dashboard does not list tasks itself.
type TaskTracker struct {
	mu      sync.Mutex
	tasks   []api.Task
	project string
	limit   int
}

func NewTaskTracker(limit int) *TaskTracker {
	if limit <= 0 {
		limit = defaultTrackedTasks
	}
	return &TaskTracker{limit: limit}
}

func (t *TaskTracker) Track(id, description, projectName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = append(t.tasks, api.Task{
		ID:          id,
		Description: description,
		Status:      api.TaskPending,
		ProjectName: projectName,
	})
	if strings.TrimSpace(projectName) != "" {
		t.project = projectName
	}
	if len(t.tasks) > t.limit {
		t.tasks = t.tasks[len(t.tasks)-t.limit:]
	}
}

func (t *TaskTracker) Tasks() []api.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.tasks) == 0 {
		return nil
	}
	out := make([]api.Task, len(t.tasks))
	copy(out, t.tasks)
	return out
}

func (t *TaskTracker) ProjectName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.project
}

// Sync refreshes every non-terminal task. A failed lookup leaves the task
// unchanged until the next poll.
func (t *TaskTracker) Sync(ctx context.Context, source TaskStatusSource) {
	for _, task := range t.Tasks() {
		if task.Terminal() || strings.TrimSpace(task.ID) == "" {
			continue
		}
		latest, err := source.TaskStatus(ctx, task.ID)
		if err != nil {
			continue
		}
		t.update(task.ID, latest)
	}
}

func (t *TaskTracker) update(id string, latest api.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.tasks {
		if t.tasks[i].ID != id {
			continue
		}
		if s := strings.TrimSpace(latest.Status); s != "" {
			t.tasks[i].Status = s
		}
		if a := strings.TrimSpace(latest.Agent); a != "" {
			t.tasks[i].Agent = a
		}
		if d := strings.TrimSpace(latest.Description); d != "" {
			t.tasks[i].Description = d
		}
		return
	}
}
