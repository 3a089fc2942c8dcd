// The RESP port is a small admin side door speaking the Redis protocol, so `redis-cli` can inspect the thumbnail
// cache of a running server:
//
//	redis-cli -p 6380 THUMBSTATS
//	redis-cli -p 6380 THUMB /workspace/outputs/image.png
//	redis-cli -p 6380 THUMBCLEAR

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var redisAddress = flag.String("redis_address", ":6380",
	"The ip:port to listen on for the Redis protocol admin port. Empty disables it.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string // Upper-cased command name.
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool    // Closes the connection after writing if true.
	writeNil        bool    // Writes a nil value if true.
	err             *string // Error to return if set.
	writeInts       []int64 // Writes an array of integers if set.
	writeBulk       *string // Writes a bulk string if set.
	writeString     string  // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInts(ints ...int64) redisOutput {
	return redisOutput{writeInts: ints}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

// write sends the output to the connection.
func (o redisOutput) write(conn redcon.Conn) {
	switch {
	case o.err != nil:
		conn.WriteError(*o.err)
	case o.writeNil:
		conn.WriteNull()
	case o.writeInts != nil:
		conn.WriteArray(len(o.writeInts))
		for _, i := range o.writeInts {
			conn.WriteInt64(i)
		}
	case o.writeBulk != nil:
		conn.WriteBulkString(*o.writeBulk)
	default:
		conn.WriteString(o.writeString)
	}
}

type redisHandler struct {
	thumbnails ThumbnailBackend
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(thumbnails ThumbnailBackend) (*redisHandler, error) {
	if thumbnails == nil {
		return nil, errors.New("expected a non-nil thumbnail backend")
	}
	return &redisHandler{thumbnails: thumbnails}, nil
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch cmd.command {
	case "PING":
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "THUMB":
		if len(cmd.args) != 1 {
			return writeRedisError(errors.New("wrong number of arguments for 'THUMB' command"))
		}
		payload, ok := rh.thumbnails.Get(cmd.args[0])
		if !ok {
			return writeRedisNil()
		}
		return writeRedisBulk(payload)
	case "THUMBSTATS":
		if len(cmd.args) != 0 {
			return writeRedisError(errors.New("wrong number of arguments for 'THUMBSTATS' command"))
		}
		stats := rh.thumbnails.Stats()
		return writeRedisInts(int64(stats.EntryCount), int64(stats.MaxEntries), stats.MemoryBytes,
			stats.MaxMemoryBytes, int64(stats.Width), int64(stats.Height))
	case "THUMBCLEAR":
		if len(cmd.args) != 0 {
			return writeRedisError(errors.New("wrong number of arguments for 'THUMBCLEAR' command"))
		}
		rh.thumbnails.Clear()
		return writeRedisString(RedisOk)
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// toRedisCommand converts a parsed redcon command, upper-casing the command name.
func toRedisCommand(cmd redcon.Command) redisCommand {
	command := redisCommand{command: strings.ToUpper(string(cmd.Args[0])), args: make([]string, len(cmd.Args)-1)}
	for i := 1; i < len(cmd.Args); i++ {
		command.args[i-1] = string(cmd.Args[i])
	}
	return command
}

// RunRedisServer serves the admin port on --redis_address until the context is cancelled.
// It returns right away when the flag is empty.
func RunRedisServer(ctx context.Context, thumbnails ThumbnailBackend) error {
	if *redisAddress == "" {
		slog.Info("Redis admin port disabled.")
		return nil
	}

	redisHandler, err := newRedisHandler(thumbnails)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *redisAddress,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			output := redisHandler.handle(toRedisCommand(cmd))
			output.write(conn)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Redis connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		slog.Info("Redis admin port listening.", "address", *redisAddress)
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis admin port: %w", err)
		}
	case err, ok := <-serverErrSignal:
		if !ok {
			return errors.New("redis server stopped unexpectedly")
		}
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
