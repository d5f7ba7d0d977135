package bootstrap

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const memoryQueueBuffer = 256

// Repositories groups the stores behind the scheduling service.
type Repositories struct {
	Availability slots.AvailabilityRepository
	Appointments slots.AppointmentRepository
	Waitlist     slots.WaitlistRepository
	Persistent   bool
}

// BuildRepositories returns Postgres-backed stores when a pool is available
// and in-memory stores otherwise.
func BuildRepositories(pool *pgxpool.Pool, sqlDB *sql.DB) Repositories {
	if pool == nil || sqlDB == nil {
		return Repositories{
			Availability: slots.NewMemoryAvailability(),
			Appointments: slots.NewMemoryAppointments(),
			Waitlist:     slots.NewMemoryWaitlist(),
		}
	}
	return Repositories{
		Availability: slots.NewPGAvailabilityStore(pool),
		Appointments: slots.NewPGAppointmentStore(pool),
		Waitlist:     slots.NewSQLWaitlistStore(sqlDB),
		Persistent:   true,
	}
}

// Queues are the transports events leave the process on.
type Queues struct {
	SlotOpened     events.Queue
	WaitlistEvents events.Queue
	InMemory       bool
}

// BuildQueues returns in-memory queues when USE_MEMORY_QUEUE is set and SQS
// queues otherwise. WaitlistEvents is nil when no URL is configured and in
// memory mode, where no process reads it.
func BuildQueues(cfg *appconfig.Config, sqsClient *sqs.Client) (Queues, error) {
	if cfg == nil {
		return Queues{}, fmt.Errorf("bootstrap: config required")
	}
	if cfg.UseMemoryQueue {
		return Queues{
			SlotOpened: events.NewMemoryQueue(memoryQueueBuffer),
			InMemory:   true,
		}, nil
	}
	if sqsClient == nil {
		return Queues{}, fmt.Errorf("bootstrap: sqs client required when USE_MEMORY_QUEUE=false")
	}
	if strings.TrimSpace(cfg.SlotOpenedQueueURL) == "" {
		return Queues{}, fmt.Errorf("bootstrap: SLOT_OPENED_QUEUE_URL is required")
	}
	q := Queues{SlotOpened: events.NewSQSQueue(sqsClient, cfg.SlotOpenedQueueURL)}
	if url := strings.TrimSpace(cfg.WaitlistEventsQueueURL); url != "" {
		q.WaitlistEvents = events.NewSQSQueue(sqsClient, url)
	}
	return q, nil
}

// DeliveryHandler routes slot.opened events to the dispatch queue and
// ranking and conflict events to the waitlist events queue.
func (q Queues) DeliveryHandler() events.DeliveryHandler {
	var handlers events.MultiDeliveryHandler
	if q.SlotOpened != nil {
		handlers = append(handlers, events.NewQueueDeliveryHandler(q.SlotOpened, events.TypeSlotOpened))
	}
	if q.WaitlistEvents != nil {
		handlers = append(handlers, events.NewQueueDeliveryHandler(q.WaitlistEvents, events.TypeCandidatesRanked, events.TypeSlotConflict))
	}
	return handlers
}

// BuildEventRecorder returns the transactional outbox and its deliverer when
// Postgres is available. Without it events are delivered directly and the
// returned deliverer is nil.
func BuildEventRecorder(pool *pgxpool.Pool, handler events.DeliveryHandler, cfg *appconfig.Config, logger *logging.Logger) (slots.EventRecorder, *events.Deliverer) {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		logger.Info("outbox disabled; delivering events directly")
		return events.NewDirectRecorder(handler), nil
	}
	store := events.NewOutboxStore(pool)
	deliverer := events.NewDeliverer(store, handler, logger)
	if cfg != nil {
		deliverer = deliverer.WithInterval(cfg.OutboxPollInterval)
	}
	return store, deliverer
}
