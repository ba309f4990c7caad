// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package scriptcache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis channel that carries script update announcements. The
// payload of a message is the bot identifier.
const Channel = "starhost:scripts"

// Notify announces that the script of the bot has changed.
func Notify(ctx context.Context, rdb redis.UniversalClient, botID string) error {
	return rdb.Publish(ctx, Channel, botID).Err()
}

// Watch invalidates entries of c as announcements arrive, until ctx is done.
// It returns once the subscription is established; announcements are handled
// in a separate goroutine.
func Watch(ctx context.Context, c *Cache, rdb redis.UniversalClient) error {
	sub := rdb.Subscribe(ctx, Channel)
	// Wait for confirmation so announcements published after Watch returns
	// are not missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.logger.Info("script update announced", "bot_id", msg.Payload)
				c.Invalidate(msg.Payload)
			}
		}
	}()
	return nil
}
