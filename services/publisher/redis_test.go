package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	t.Cleanup(func() { client.Close() })

	// Test if Redis is available
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	return client
}

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	client.Del(ctx, "test_measurements")

	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, "test_measurements", 1, 100)
	defer publisher.Close()
	require.NoError(t, publisher.Ping())

	err := client.XGroupCreateMkStream(ctx, "test_measurements", "test_group", "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		require.NoError(t, err)
	}

	messages := make(chan string, 1)
	go func() {
		res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Streams:  []string{"test_measurements", ">"},
			Group:    "test_group",
			Consumer: "test_consumer",
			Block:    time.Second,
		}).Result()
		if err != nil || len(res) == 0 || len(res[0].Messages) == 0 {
			messages <- ""
			return
		}
		messages <- res[0].Messages[0].Values[MeasurementField].(string)
	}()

	time.Sleep(100 * time.Millisecond)

	m := Measurement{
		RunID:  "run-1",
		Job:    "adtraction_stats",
		Sheet:  "ADTR_conversions",
		Key:    "2025-03-01 09:30",
		Values: map[string]any{"Konverteringar": 12345678},
		At:     time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
	}
	require.NoError(t, PublishMeasurement(publisher, m))

	select {
	case msg := <-messages:
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg), &got))
		assert.Equal(t, "adtraction_stats", got["job"])
		assert.Equal(t, "ADTR_conversions", got["sheet"])
		assert.Equal(t, map[string]any{"Konverteringar": 12345678.0}, got["values"])
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for message")
	}
}

func TestRedisPublisherTrimStreams(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	client.Del(ctx, "test_trim:0", "test_trim:1")

	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, "test_trim", 2, 3)
	defer publisher.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, publisher.Publish(MeasurementField, []byte(`{}`)))
	}
	require.NoError(t, publisher.TrimStreams())

	for _, stream := range []string{"test_trim:0", "test_trim:1"} {
		n, err := client.XLen(ctx, stream).Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, n, int64(3))
	}
}

func TestMeasurementEncode(t *testing.T) {
	data, err := Measurement{RunID: "r", Job: "j", Sheet: "s", Key: "k", Values: map[string]any{"a": "-"}}.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"r"`)
	assert.Contains(t, string(data), `"values":{"a":"-"}`)
}
