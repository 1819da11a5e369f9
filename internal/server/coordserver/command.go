package coordserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"

	"github.com/yndnr/roomrelay/internal/coord/memstore"
	"github.com/yndnr/roomrelay/internal/core/domain"
)

// commandFunc handles one command. args[0] is the command name.
type commandFunc func(ctx context.Context, c *Conn, args [][]byte)

type command struct {
	fn commandFunc
	// arity follows Redis: positive is exact, negative is a minimum.
	arity int
}

// CommandHandler dispatches commands to the store.
type CommandHandler struct {
	store    *memstore.Store
	password string
	logger   *slog.Logger
	push     func(c *Conn, channel string, payload []byte)
	commands map[string]command
}

// NewCommandHandler creates a handler. push writes subscription messages to
// a connection; the Server installs its own.
func NewCommandHandler(store *memstore.Store, cfg *Config, logger *slog.Logger) *CommandHandler {
	h := &CommandHandler{
		store:    store,
		password: cfg.Password,
		logger:   logger,
	}
	h.commands = map[string]command{
		"SELECT":    {h.handleSelect, 2},
		"CLIENT":    {h.handleClient, -2},
		"SADD":      {h.handleSAdd, -3},
		"SREM":      {h.handleSRem, -3},
		"SMEMBERS":  {h.handleSMembers, 2},
		"SISMEMBER": {h.handleSIsMember, 3},
		"DEL":       {h.handleDel, -2},
		"HINCRBY":   {h.handleHIncrBy, 4},
		"HGET":      {h.handleHGet, 3},
		"HDEL":      {h.handleHDel, -3},
		"PUBLISH":   {h.handlePublish, 3},
	}
	return h
}

// formatRedisError converts a store error to a reply.
// Relay errors become "ERR <code> <message>".
func formatRedisError(err error) string {
	if errors.Is(err, memstore.ErrWrongType) || errors.Is(err, memstore.ErrOverflow) {
		return err.Error()
	}
	if de, ok := domain.AsError(err); ok {
		return "ERR " + de.Code + " " + de.Message
	}
	return "ERR " + err.Error()
}

func wrongArity(name string) string {
	return "ERR wrong number of arguments for '" + name + "' command"
}

func checkArity(arity, n int) bool {
	if arity > 0 {
		return n == arity
	}
	return n >= -arity
}

// Handle executes one command and reports whether the connection should
// close afterwards. The caller holds c.wmu and flushes.
func (h *CommandHandler) Handle(ctx context.Context, c *Conn, args [][]byte) (quit bool) {
	name := normalizeCommandName(args[0])

	if c.limiter != nil && !c.limiter.Allow() {
		c.w.Error("ERR " + domain.ErrRateLimited.Code + " " + domain.ErrRateLimited.Message)
		return false
	}

	// Connection commands, allowed before AUTH.
	switch name {
	case "QUIT":
		c.w.SimpleString("OK")
		return true
	case "AUTH":
		h.handleAuth(c, args)
		return false
	case "HELLO":
		// RESP3 is not supported. Clients fall back to RESP2 on any error.
		c.w.Error("NOPROTO sorry, this protocol version is not supported")
		return false
	}

	if h.password != "" && !c.authenticated {
		c.w.Error("NOAUTH Authentication required.")
		return false
	}

	switch name {
	case "PING":
		h.handlePing(c, args)
		return false
	case "SUBSCRIBE":
		if len(args) < 2 {
			c.w.Error(wrongArity("subscribe"))
			return false
		}
		h.handleSubscribe(ctx, c, args)
		return false
	case "UNSUBSCRIBE":
		h.handleUnsubscribe(ctx, c, args)
		return false
	}

	if c.subscribeMode() {
		c.w.Error("ERR Can't execute '" + string(args[0]) + "': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context")
		return false
	}

	cmd, ok := h.commands[name]
	if !ok {
		c.w.Error("ERR unknown command '" + string(args[0]) + "'")
		return false
	}
	if !checkArity(cmd.arity, len(args)) {
		c.w.Error(wrongArity(string(args[0])))
		return false
	}
	cmd.fn(ctx, c, args)
	return false
}

// AUTH [username] password
func (h *CommandHandler) handleAuth(c *Conn, args [][]byte) {
	var password []byte
	switch len(args) {
	case 2:
		password = args[1]
	case 3:
		password = args[2]
	default:
		c.w.Error(wrongArity("auth"))
		return
	}

	if h.password == "" {
		c.w.Error("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
		return
	}
	if subtle.ConstantTimeCompare(password, []byte(h.password)) != 1 {
		c.w.Error("WRONGPASS invalid username-password pair or user is disabled.")
		return
	}
	c.authenticated = true
	c.w.SimpleString("OK")
}

// PING [message]
func (h *CommandHandler) handlePing(c *Conn, args [][]byte) {
	if c.subscribeMode() {
		c.w.ArrayHeader(2)
		c.w.BulkString("pong")
		if len(args) > 1 {
			c.w.Bulk(args[1])
		} else {
			c.w.BulkString("")
		}
		return
	}
	if len(args) > 1 {
		c.w.Bulk(args[1])
		return
	}
	c.w.SimpleString("PONG")
}

// SELECT index. Only database 0 exists.
func (h *CommandHandler) handleSelect(_ context.Context, c *Conn, args [][]byte) {
	if string(args[1]) != "0" {
		c.w.Error("ERR DB index is out of range")
		return
	}
	c.w.SimpleString("OK")
}

// CLIENT SETNAME | SETINFO | GETNAME | ID
func (h *CommandHandler) handleClient(_ context.Context, c *Conn, args [][]byte) {
	switch normalizeCommandName(args[1]) {
	case "SETNAME", "SETINFO":
		c.w.SimpleString("OK")
	case "GETNAME":
		c.w.Null()
	default:
		c.w.Error("ERR unknown subcommand '" + string(args[1]) + "'")
	}
}

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

// SADD key member [member ...]
func (h *CommandHandler) handleSAdd(ctx context.Context, c *Conn, args [][]byte) {
	n, err := h.store.SetAddMany(ctx, string(args[1]), toStrings(args[2:])...)
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}

// SREM key member [member ...]
func (h *CommandHandler) handleSRem(ctx context.Context, c *Conn, args [][]byte) {
	n, err := h.store.SetRemoveMany(ctx, string(args[1]), toStrings(args[2:])...)
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}

// SMEMBERS key
func (h *CommandHandler) handleSMembers(ctx context.Context, c *Conn, args [][]byte) {
	members, err := h.store.SetMembers(ctx, string(args[1]))
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.StringArray(members)
}

// SISMEMBER key member
func (h *CommandHandler) handleSIsMember(ctx context.Context, c *Conn, args [][]byte) {
	ok, err := h.store.SetContains(ctx, string(args[1]), string(args[2]))
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	if ok {
		c.w.Integer(1)
		return
	}
	c.w.Integer(0)
}

// DEL key [key ...]
func (h *CommandHandler) handleDel(ctx context.Context, c *Conn, args [][]byte) {
	n, err := h.store.Delete(ctx, toStrings(args[1:])...)
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}

// HINCRBY key field increment
func (h *CommandHandler) handleHIncrBy(ctx context.Context, c *Conn, args [][]byte) {
	delta, err := strconv.ParseInt(string(args[3]), 10, 64)
	if err != nil {
		c.w.Error("ERR value is not an integer or out of range")
		return
	}
	n, err := h.store.CounterIncrement(ctx, string(args[1]), string(args[2]), delta)
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}

// HGET key field
func (h *CommandHandler) handleHGet(ctx context.Context, c *Conn, args [][]byte) {
	v, ok, err := h.store.HashGet(ctx, string(args[1]), string(args[2]))
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	if !ok {
		c.w.Null()
		return
	}
	c.w.BulkString(strconv.FormatInt(v, 10))
}

// HDEL key field [field ...]
func (h *CommandHandler) handleHDel(ctx context.Context, c *Conn, args [][]byte) {
	n, err := h.store.HashDelete(ctx, string(args[1]), toStrings(args[2:])...)
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}

// PUBLISH channel message
func (h *CommandHandler) handlePublish(ctx context.Context, c *Conn, args [][]byte) {
	n, err := h.store.Publish(ctx, string(args[1]), args[2])
	if err != nil {
		c.w.Error(formatRedisError(err))
		return
	}
	c.w.Integer(n)
}
