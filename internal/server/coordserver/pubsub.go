package coordserver

import (
	"context"
	"sort"
)

// SUBSCRIBE channel [channel ...]
func (h *CommandHandler) handleSubscribe(ctx context.Context, c *Conn, args [][]byte) {
	if c.sub == nil {
		sub, err := h.store.Open(ctx, func(channel string, payload []byte) {
			if h.push != nil {
				h.push(c, channel, payload)
			}
		})
		if err != nil {
			c.w.Error(formatRedisError(err))
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		c.sub = sub
		c.subCancel = cancel
		go func() {
			// Returns on cancel or Close; either way the conn is going away
			// or has left subscribe mode.
			_ = sub.Run(runCtx)
		}()
	}

	for _, raw := range args[1:] {
		channel := string(raw)
		n, err := c.sub.SubscribeCount(ctx, channel)
		if err != nil {
			c.w.Error(formatRedisError(err))
			return
		}
		c.subCount = n
		c.w.ArrayHeader(3)
		c.w.BulkString("subscribe")
		c.w.BulkString(channel)
		c.w.Integer(int64(n))
	}
}

// UNSUBSCRIBE [channel ...]. Without arguments every channel is dropped.
func (h *CommandHandler) handleUnsubscribe(ctx context.Context, c *Conn, args [][]byte) {
	var channels []string
	if len(args) > 1 {
		channels = toStrings(args[1:])
	} else if c.sub != nil {
		channels = c.sub.Channels()
		sort.Strings(channels)
	}

	if len(channels) == 0 {
		c.w.ArrayHeader(3)
		c.w.BulkString("unsubscribe")
		c.w.Null()
		c.w.Integer(int64(c.subCount))
		return
	}

	for _, channel := range channels {
		n := 0
		if c.sub != nil {
			var err error
			n, err = c.sub.UnsubscribeCount(ctx, channel)
			if err != nil {
				c.w.Error(formatRedisError(err))
				return
			}
		}
		c.subCount = n
		c.w.ArrayHeader(3)
		c.w.BulkString("unsubscribe")
		c.w.BulkString(channel)
		c.w.Integer(int64(n))
	}
}
