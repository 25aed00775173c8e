package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/sentinel-listener/client"
	"github.com/cyberinferno/sentinel-listener/wire"
)

// SendCommand connects to a listener and sends each positional value as a
// message. Values that parse as JSON are sent decoded, others as strings.
type SendCommand struct {
	Addr    string        `short:"a" long:"addr" default:"localhost:8080" description:"Listener address"`
	Secret  string        `long:"secret" env:"SENTINEL_SECRET" required:"true" description:"Shared secret"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"Connect, handshake and reply timeout"`
	Close   bool          `long:"close" description:"Send the close sentinel after the values"`

	Args struct {
		Values []string `positional-arg-name:"value"`
	} `positional-args:"yes"`
}

// Execute implements flags.Commander.
func (c *SendCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := client.DefaultConfig(c.Addr, []byte(c.Secret))
	cfg.ConnectionTimeout = c.Timeout
	cfg.HandshakeTimeout = c.Timeout
	cfg.ReadTimeout = c.Timeout

	conn, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, raw := range c.Args.Values {
		reply, err := conn.Request(parseValue(raw))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s -> %s\n", raw, formatReply(reply))
	}

	if c.Close {
		if err := conn.CloseSession(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s -> %s\n", wire.Sentinel, wire.Acknowledgement)
	}

	return nil
}

func parseValue(raw string) wire.Message {
	msg, err := wire.Unmarshal([]byte(raw))
	if err != nil {
		return raw
	}
	return msg
}

func formatReply(reply wire.Message) string {
	if wire.IsResponse(reply) {
		return fmt.Sprintf("0x%X", wire.Response)
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return fmt.Sprintf("%v", reply)
	}
	return string(out)
}
