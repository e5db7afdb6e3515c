package store

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// StreamPublisher Redis Streams 事件发布器
// 平台级事件（如租户开通完成）写入stream供下游消费
type StreamPublisher struct {
	c *redis.Client
}

func NewStreamPublisher(c *redis.Client) *StreamPublisher {
	return &StreamPublisher{c: c}
}

// Publish 发布事件到指定stream，返回消息ID
func (p *StreamPublisher) Publish(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return p.c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
}
