package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

const serviceName = "sentinel-listener"

func main() {
	var (
		listen ListenCommand
		send   SendCommand
	)

	parser := flags.NewNamedParser(serviceName, flags.HelpFlag|flags.PassDoubleDash)
	_, _ = parser.AddCommand("listen", "serve one session", "Bind the endpoint, accept one authenticated peer and answer its messages until it sends \"close\".", &listen)
	_, _ = parser.AddCommand("send", "send values to a listener", "Connect to a listener, send each value and print the replies.", &send)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return
		}

		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}
