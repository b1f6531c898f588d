package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// WorkstationChannel is the pub/sub channel carrying session events destined
// for one workstation. Published on by whichever instance handled the tablet
// request, consumed by the instance holding the workstation's stream.
func WorkstationChannel(workstationID string) string {
	return fmt.Sprintf("workstation-events:%s", workstationID)
}
