package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/peernet/cmd/internal/logcfg"
	"github.com/danmuck/peernet/src/api/transport"
	logs "github.com/danmuck/smplog"
)

// client pushes "say" events straight onto a node's transport, addressed
// to one of its messengers.
func main() {
	logs.Configure(logcfg.Load())

	endpoint := flag.String("endpoint", "tcp://127.0.0.1:3000", "node endpoint")
	to := flag.String("to", "peerA", "destination address on the node")
	flag.Parse()

	handler := transport.NewTCPHandler("", nil)
	defer handler.Close()
	codec := transport.ProtoCodec{}

	fmt.Println("Type your message and press Enter to send. Type 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := scanner.Text()

		if input == "exit" {
			fmt.Println("Exiting...")
			break
		}

		payload, err := codec.Serialize("say", input)
		if err != nil {
			logs.Errorf(err, "Failed to serialize message")
			continue
		}

		env := transport.NewEnvelope(*to, payload)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = handler.Send(ctx, *endpoint, env)
		cancel()
		if err != nil {
			logs.Errorf(err, "Failed to send message")
			break
		}

		logs.Infof("Envelope %s sent to %s. Payload length: %v", env.ID, *to, len(payload))
	}
}
