// Command mock-events publishes sample task lifecycle events onto the events
// queue so the notifier and gateway can be exercised without the API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/Priya8975/task-event-pipeline/internal/audit"
	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/config"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/engine"
	"github.com/Priya8975/task-event-pipeline/internal/store"
)

func main() {
	configDir := pflag.String("config", ".", "directory containing config.yaml")
	count := pflag.Int("count", 5, "number of task scenarios to publish")
	interval := pflag.Duration("interval", time.Second, "pause between scenarios")
	users := pflag.StringSlice("users", []string{"user-ada", "user-grace", "user-linus"}, "user ids to assign tasks to")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(*users) < 2 {
		logger.Error("at least two users are required", "users", *users)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, "")
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	emitter := engine.NewEmitter(broker.New(redisStore.Client(), logger), nil, logger)

	for i := 1; i <= *count; i++ {
		requestID := correlation.NewRequestID()
		err := correlation.Run(ctx, requestID, func(ctx context.Context) error {
			return publishScenario(ctx, emitter, i, *users)
		})
		if err != nil {
			logger.Error("scenario failed", "scenario", i, "request_id", requestID, "error", err)
		} else {
			logger.Info("scenario published", "scenario", i, "request_id", requestID)
		}

		if i == *count {
			break
		}
		select {
		case <-ctx.Done():
			logger.Info("interrupted", "published", i)
			return
		case <-time.After(*interval):
		}
	}

	logger.Info("done", "stats", emitter.Stats())
}

// publishScenario emits a task.created, a task.updated moving the task to
// IN_PROGRESS with a new assignee, and a task.comment.created.
func publishScenario(ctx context.Context, emitter *engine.Emitter, n int, users []string) error {
	owner := domain.Actor{ID: users[0], Name: "Mock Owner"}
	now := time.Now().UTC()
	due := now.Add(72 * time.Hour).Truncate(time.Second)

	task := &domain.Task{
		ID:        uuid.NewString(),
		Title:     fmt.Sprintf("Sample task #%d", n),
		Status:    domain.TaskStatusTodo,
		Priority:  domain.TaskPriorityMedium,
		DueDate:   &due,
		Assignees: []domain.Assignee{{ID: users[1]}},
		CreatedBy: owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	actor := &domain.ActorRef{ID: owner.ID, DisplayName: audit.DisplayName(&owner)}

	created := domain.TaskEvent{
		Task:       domain.NewTaskPayload(task),
		Actor:      actor,
		Recipients: task.AssigneeIDs(),
	}
	if err := publish(ctx, emitter, domain.PatternTaskCreated, created); err != nil {
		return err
	}

	previous := task.Snapshot()
	task.Status = domain.TaskStatusInProgress
	task.Assignees = append(task.Assignees, domain.Assignee{ID: users[len(users)-1]})
	task.UpdatedAt = time.Now().UTC()

	updated := domain.TaskEvent{
		Task:       domain.NewTaskPayload(task),
		Actor:      actor,
		Changes:    engine.Diff(previous, task.Snapshot()),
		Recipients: task.AssigneeIDs(),
	}
	if err := publish(ctx, emitter, domain.PatternTaskUpdated, updated); err != nil {
		return err
	}

	payload := domain.NewTaskPayload(task)
	comment := domain.CommentEvent{
		Comment: domain.Comment{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			AuthorID:   owner.ID,
			AuthorName: audit.DisplayName(&owner),
			Message:    "Picking this up today.",
			CreatedAt:  task.UpdatedAt,
			UpdatedAt:  task.UpdatedAt,
		},
		Task:       &payload,
		Recipients: task.AssigneeIDs(),
	}
	return publish(ctx, emitter, domain.PatternCommentCreated, comment)
}

func publish(ctx context.Context, emitter *engine.Emitter, pattern string, payload any) error {
	result := emitter.Publish(ctx, pattern, payload)
	if !result.OK() {
		return fmt.Errorf("publishing %s: %w", pattern, result.Err)
	}
	return nil
}
