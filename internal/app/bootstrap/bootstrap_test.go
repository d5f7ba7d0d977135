package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	require.NotNil(t, client)
	defer client.Close()

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), true))
}

func TestBuildClinicStoreUsesConfigDefaults(t *testing.T) {
	cfg := &appconfig.Config{DefaultBufferMinutes: 15, WaitlistDispatchLimit: 3}
	store := BuildClinicStore(nil, cfg)

	settings, err := store.Get(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, 15, settings.DefaultBufferMinutes)
	assert.Equal(t, 3, settings.DispatchLimit)
}

func TestBuildSlotCacheNeedsRedis(t *testing.T) {
	assert.Nil(t, BuildSlotCache(nil, &appconfig.Config{}))
}

func TestBuildRepositoriesFallsBackToMemory(t *testing.T) {
	repos := BuildRepositories(nil, nil)
	assert.False(t, repos.Persistent)
	assert.IsType(t, &slots.MemoryAvailability{}, repos.Availability)
	assert.IsType(t, &slots.MemoryAppointments{}, repos.Appointments)
	assert.IsType(t, &slots.MemoryWaitlist{}, repos.Waitlist)
}

func TestBuildQueues(t *testing.T) {
	_, err := BuildQueues(nil, nil)
	assert.Error(t, err)

	_, err = BuildQueues(&appconfig.Config{}, nil)
	assert.Error(t, err)

	q, err := BuildQueues(&appconfig.Config{UseMemoryQueue: true}, nil)
	require.NoError(t, err)
	assert.True(t, q.InMemory)
	assert.NotNil(t, q.SlotOpened)
	assert.Nil(t, q.WaitlistEvents)
}

func TestDeliveryHandlerRoutesByType(t *testing.T) {
	q := Queues{SlotOpened: events.NewMemoryQueue(4), WaitlistEvents: events.NewMemoryQueue(4)}
	recorder, deliverer := BuildEventRecorder(nil, q.DeliveryHandler(), nil, nil)
	assert.Nil(t, deliverer)

	ctx := context.Background()
	start := time.Date(2025, time.December, 8, 9, 0, 0, 0, time.UTC)
	_, err := recorder.Append(ctx, events.ClinicAggregate("clinic-1"), events.SlotOpenedV1{ClinicID: "clinic-1", DoctorID: "doc-1", StartAt: start})
	require.NoError(t, err)
	_, err = recorder.Append(ctx, events.ClinicAggregate("clinic-1"), events.SlotConflictDetectedV1{ClinicID: "clinic-1"})
	require.NoError(t, err)

	opened, err := q.SlotOpened.Receive(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, opened, 1)
	env, err := events.DecodeEnvelope([]byte(opened[0].Body))
	require.NoError(t, err)
	assert.Equal(t, events.TypeSlotOpened, env.EventType)

	other, err := q.WaitlistEvents.Receive(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, other, 1)
	env, err = events.DecodeEnvelope([]byte(other[0].Body))
	require.NoError(t, err)
	assert.Equal(t, events.TypeSlotConflict, env.EventType)
}

func TestMemoryModeRankedEventsNeverBlock(t *testing.T) {
	q, err := BuildQueues(&appconfig.Config{UseMemoryQueue: true}, nil)
	require.NoError(t, err)
	recorder, _ := BuildEventRecorder(nil, q.DeliveryHandler(), nil, logging.New("error"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < memoryQueueBuffer+44; i++ {
		_, err := recorder.Append(ctx, events.ClinicAggregate("clinic-1"), events.WaitlistCandidatesRankedV1{ClinicID: "clinic-1"})
		require.NoError(t, err, "append %d", i)
		_, err = recorder.Append(ctx, events.ClinicAggregate("clinic-1"), events.SlotConflictDetectedV1{ClinicID: "clinic-1"})
		require.NoError(t, err, "append %d", i)
	}

	start := time.Date(2025, time.December, 8, 9, 0, 0, 0, time.UTC)
	_, err = recorder.Append(ctx, events.ClinicAggregate("clinic-1"), events.SlotOpenedV1{ClinicID: "clinic-1", DoctorID: "doc-1", StartAt: start})
	require.NoError(t, err)
	opened, err := q.SlotOpened.Receive(ctx, 10, 1)
	require.NoError(t, err)
	assert.Len(t, opened, 1)
}
