package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
)

func TestOutboxRetentionJobPrunesOldPublishedRows(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	repo := outbox.NewRepository(conn)
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	stale := now.Add(-40 * 24 * time.Hour)
	fresh := now.Add(-2 * 24 * time.Hour)
	for _, publishedAt := range []*time.Time{&stale, &fresh, nil} {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}))
	}

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     quietLogger(),
		DB:         client,
		Repository: repo,
	})
	require.NoError(t, err)
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }
	require.Equal(t, defaultOutboxRetention, job.retention)

	require.NoError(t, job.Run(context.Background()))

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining)
}

type failingPruner struct{}

func (failingPruner) DeletePublishedBefore(*gorm.DB, time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     quietLogger(),
		DB:         dbtest.Open(t),
		Repository: failingPruner{},
		Retention:  time.Hour,
	})
	require.NoError(t, err)
	require.ErrorContains(t, jobIface.Run(context.Background()), "boom")

	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: quietLogger()})
	require.Error(t, err)
}
