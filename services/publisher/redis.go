package publisher

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"
)

// RedisPublisher implements Publisher using Redis streams
type RedisPublisher struct {
	client          *redis.Client
	ctx             context.Context
	streamPrefix    string
	streamCount     int
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher. With a streamCount of 1
// messages go to the stream named streamPrefix; otherwise they are spread
// over streamPrefix:0 .. streamPrefix:N-1.
func NewRedisPublisher(ctx context.Context, addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		ctx:             ctx,
		streamPrefix:    streamPrefix,
		streamCount:     max(streamCount, 1),
		streamMaxLength: streamMaxLength,
		log:             logger.ForPublisher(),
	}
}

// Ping checks that the server is reachable
func (p *RedisPublisher) Ping() error {
	if err := p.client.Ping(p.ctx).Err(); err != nil {
		return errors.NewPublisher("redis", "ping", err)
	}
	return nil
}

func (p *RedisPublisher) stream() string {
	if p.streamCount == 1 {
		return p.streamPrefix
	}
	return p.streamPrefix + ":" + strconv.Itoa(rand.IntN(p.streamCount))
}

// Publish adds message to a stream under the field key
func (p *RedisPublisher) Publish(key string, message []byte) error {
	stream := p.stream()
	err := p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			key: message,
		},
	}).Err()
	if err != nil {
		return errors.NewPublisher("redis", "xadd "+stream, err)
	}
	p.log.Debug().Str("stream", stream).Int("bytes", len(message)).Msg("Published message")
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	if p.streamMaxLength <= 0 {
		return nil
	}

	streams := []string{p.streamPrefix}
	if p.streamCount > 1 {
		keys, err := p.client.Keys(p.ctx, p.streamPrefix+":*").Result()
		if err != nil {
			return errors.NewPublisher("redis", "list streams", err)
		}
		streams = keys
	}

	for _, stream := range streams {
		if err := p.client.XTrimMaxLen(p.ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return errors.NewPublisher("redis", "trim "+stream, err)
		}
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
