//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/kafka"
	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/0verdr1v3/bovine/internal/pipeline"
	"github.com/0verdr1v3/bovine/internal/reference"
	"github.com/0verdr1v3/bovine/internal/source"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testAlertTopic = "test-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("bovine-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestCycleAlertsReachKafka runs a full cycle against the reference dataset
// and checks that every change event lands on the alert topic.
func TestCycleAlertsReachKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaAlertTopic: testAlertTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	ds, err := reference.Default()
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC))
	metrics := observability.NewMetricsForTesting()
	exec := source.NewExecutor([]source.Collaborator{
		reference.NewCensusSource(ds),
		reference.NewHistoricalConflictSource(ds),
	}, source.ExecutorConfig{Timeout: 5 * time.Second, MaxParallel: 2}, clock, discardLogger(), metrics)

	p := pipeline.New(exec, cache.NewMemoryStore(), writer, pipeline.DefaultParams(), clock, discardLogger(), metrics)
	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, report.Changes)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testAlertTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := make(map[string]domain.ChangeEvent, len(report.Changes))
	for range report.Changes {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from alert topic")

		var event domain.ChangeEvent
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, event.Category, headers["category"])
		assert.Equal(t, string(event.Kind), headers["kind"])
		got[string(msg.Key)+"/"+string(event.Kind)] = event
	}

	for _, want := range report.Changes {
		key := want.Category + ":" + want.SubjectID + "/" + string(want.Kind)
		assert.Equal(t, want, got[key], key)
	}
}
