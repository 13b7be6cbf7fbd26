// Package rabbitmq carries scan jobs over a durable RabbitMQ queue so the API
// and the workers can run as separate processes.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/logger"
)

// Options configures a Queue.
type Options struct {
	// Name is the work queue. Dead-lettered jobs go to Name + ".dlq".
	Name string
	// Prefetch is the number of unacked deliveries per consumer.
	Prefetch int
	// ConsumerTag identifies this worker to the broker.
	ConsumerTag string
}

// channel is the subset of *amqp.Channel the queue uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Queue publishes and consumes scan jobs with publisher confirms.
type Queue struct {
	conn  *amqp.Connection
	ch    channel
	acks  <-chan amqp.Confirmation
	opts  Options
	store jobs.JobStore

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Dial connects to url, declares the work and dead-letter queues and enables
// publisher confirms. store may be nil.
func Dial(url string, opts Options, store jobs.JobStore) (*Queue, error) {
	if opts.Name == "" {
		return nil, errors.New("rabbitmq: queue name is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := declare(ch, opts.Name); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	q := newQueue(ch, acks, opts, store)
	q.conn = conn
	return q, nil
}

func declare(ch *amqp.Channel, name string) error {
	dlq := name + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", dlq, err)
	}
	_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", name, err)
	}
	return nil
}

func newQueue(ch channel, acks <-chan amqp.Confirmation, opts Options, store jobs.JobStore) *Queue {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.ConsumerTag == "" {
		opts.ConsumerTag = "tipenter-" + uuid.NewString()[:8]
	}
	return &Queue{ch: ch, acks: acks, opts: opts, store: store}
}

// PublishScanBatch publishes the job as a persistent JSON message and waits
// for the broker's confirm.
func (q *Queue) PublishScanBatch(ctx context.Context, job *jobs.ScanBatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	job.Prepare(uuid.NewString)

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode job: %w", err)
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	err = q.ch.PublishWithContext(ctx, "", q.opts.Name, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.JobID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	if q.acks == nil {
		return nil
	}
	select {
	case conf, ok := <-q.acks:
		if !ok {
			return jobs.ErrQueueClosed
		}
		if !conf.Ack {
			return errors.New("rabbitmq: publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start subscribes to the work queue and handles deliveries in a goroutine.
// Failed jobs are republished with an incremented retry count until
// MaxRetries; then they are dead-lettered.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return jobs.ErrQueueClosed
	}
	q.mu.Unlock()

	if err := q.ch.Qos(q.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	deliveries, err := q.ch.Consume(q.opts.Name, q.opts.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				q.handle(ctx, d, handler)
			}
		}
	}()
	return nil
}

func (q *Queue) handle(ctx context.Context, d amqp.Delivery, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	var job jobs.ScanBatchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Error().Err(err).Str("message_id", d.MessageId).Msg("undecodable job, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	log = log.With().Str("job_id", job.JobID).Str("batch_id", job.BatchID).Logger()

	job.Status = jobs.JobStatusProcessing
	started := time.Now().UTC()
	job.StartedAt = &started
	q.save(ctx, &job)

	err := handler(ctx, &job)

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, &job)
		_ = d.Ack(false)
		log.Info().Int("processed_images", job.Processed).Int("failed_images", job.Failed).Msg("job completed")

	case ctx.Err() != nil:
		// Shutdown interrupted the job; hand it back to the broker untouched.
		job.Status = jobs.JobStatusQueued
		job.StartedAt = nil
		job.CompletedAt = nil
		q.save(context.WithoutCancel(ctx), &job)
		log.Warn().Err(err).Msg("job interrupted, requeueing")
		_ = d.Nack(false, true)

	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusQueued
		q.save(ctx, &job)
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("job failed, retrying")

		retry := job
		retry.Status = jobs.JobStatusQueued
		retry.StartedAt = nil
		retry.CompletedAt = nil
		if pubErr := q.PublishScanBatch(ctx, &retry); pubErr != nil {
			log.Error().Err(pubErr).Msg("re-publish failed, requeueing delivery")
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)

	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		q.save(ctx, &job)
		log.Error().Err(err).Msg("job failed, dead-lettering")
		_ = d.Nack(false, false)
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.ScanBatchJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
}

// Stop cancels the consumer and waits for the in-flight job.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	if err := q.ch.Cancel(q.opts.ConsumerTag, false); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("rabbitmq: cancel consumer")
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops consuming and closes the channel and connection.
func (q *Queue) Close() error {
	_ = q.Stop(context.Background())
	var errs []error
	if q.ch != nil {
		errs = append(errs, q.ch.Close())
	}
	if q.conn != nil {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
