package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
)

// Context is the execution handle for one claimed job: the claimed row,
// the repo it reports through, and the only sanctioned ways to report
// progress or terminate the run. Handlers never write the job row
// directly.
type Context struct {
	Ctx  context.Context
	Job  *types.IngestJob
	repo repos.IngestJobRepo
}

func NewContext(ctx context.Context, job *types.IngestJob, repo repos.IngestJobRepo) *Context {
	return &Context{Ctx: ctx, Job: job, repo: repo}
}

// DecodePayload unmarshals the job's input into dst.
func (c *Context) DecodePayload(dst any) error {
	if len(c.Job.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Payload, dst)
}

// Progress persists a non-terminal progress update, 0..100.
func (c *Context) Progress(pct int) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if err := c.repo.UpdateFields(dbctx.New(c.Ctx), c.Job.ID, map[string]interface{}{
		"progress":   pct,
		"updated_at": time.Now(),
	}); err == nil {
		c.Job.Progress = pct
	}
}

// Heartbeat refreshes the claim so the stale-running sweep leaves this
// job alone during long parses.
func (c *Context) Heartbeat() {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.repo.Heartbeat(dbctx.New(c.Ctx), c.Job.ID)
}

// Fail marks the run terminally failed and releases the claim.
func (c *Context) Fail(err error) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	now := time.Now()
	if uErr := c.repo.UpdateFields(dbctx.New(c.Ctx), c.Job.ID, map[string]interface{}{
		"status":     types.JobStatusFailed,
		"error":      msg,
		"locked_at":  nil,
		"updated_at": now,
	}); uErr != nil {
		return
	}
	c.Job.Status = types.JobStatusFailed
	c.Job.Error = msg
	c.Job.LockedAt = nil
}

// Succeed marks the run done with its result payload.
func (c *Context) Succeed(result any) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	now := time.Now()
	if uErr := c.repo.UpdateFields(dbctx.New(c.Ctx), c.Job.ID, map[string]interface{}{
		"status":     types.JobStatusSucceeded,
		"progress":   100,
		"error":      "",
		"result":     res,
		"locked_at":  nil,
		"updated_at": now,
	}); uErr != nil {
		return
	}
	c.Job.Status = types.JobStatusSucceeded
	c.Job.Progress = 100
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
}
