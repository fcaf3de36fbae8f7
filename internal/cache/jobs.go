package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/opensource-finance/hazmat/internal/domain"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func jobKey(id string) string {
	return "job:" + id
}

func getJob(ctx context.Context, c kv, id string) (*domain.BatchJob, error) {
	data, err := c.Get(ctx, jobKey(id))
	if err != nil || data == nil {
		return nil, err
	}

	var job domain.BatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func setJob(ctx context.Context, c kv, job *domain.BatchJob, ttl time.Duration) error {
	if job == nil || job.ID == "" {
		return errors.New("batch job id is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.Set(ctx, jobKey(job.ID), data, ttl)
}
