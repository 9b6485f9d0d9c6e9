package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/peernet/cmd/internal/logcfg"
	"github.com/danmuck/peernet/src/api/network"
	"github.com/danmuck/peernet/src/api/nodes"
	logs "github.com/danmuck/smplog"
)

func main() {
	logs.Configure(logcfg.Load())

	configPath := flag.String("config", "", "node TOML config (defaults to loopback TCP)")
	addresses := flag.String("addresses", "peerA", "comma separated addresses managed by this node")
	pingTarget := flag.String("ping", "", "address to ping every -interval")
	interval := flag.Duration("interval", 2*time.Second, "ping interval")
	flag.Parse()

	cfg := nodes.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = nodes.LoadConfig(*configPath); err != nil {
			logs.Fatalf(err, "failed to load config")
		}
	}

	node, err := nodes.NewDefaultNode(cfg)
	if err != nil {
		logs.Fatalf(err, "failed to create node")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		logs.Fatalf(err, "failed to start node")
	}

	net := node.Network()
	net.OnSubscribe(func(_ context.Context, address string) error {
		logs.Infof("subscribe %s", address)
		return nil
	})
	net.OnUnsubscribe(func(_ context.Context, address string) error {
		logs.Infof("unsubscribe %s", address)
		return nil
	})
	net.OnSent(func(ev network.SentEvent) {
		logs.Debugf("sent %d bytes to %s (in memory: %t)", len(ev.Payload), ev.To, ev.InMemory)
	})
	net.OnError(func(err error) {
		logs.Errorf(err, "deferred delivery failed")
	})

	var messengers []*network.Messenger
	for _, address := range strings.Split(*addresses, ",") {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		m, err := net.CreateMessenger(ctx, address)
		if err != nil {
			logs.Fatalf(err, "failed to create messenger %s", address)
		}
		serve(ctx, m)
		messengers = append(messengers, m)
	}

	if *pingTarget != "" && len(messengers) > 0 {
		go pingLoop(ctx, messengers[0], *pingTarget, *interval)
	}

	<-ctx.Done()
	logs.Infof("shutting down")
	for _, m := range messengers {
		if err := m.Destroy(context.Background()); err != nil {
			logs.Errorf(err, "destroy %s", m.Address())
		}
	}
	if err := node.Shutdown(); err != nil {
		logs.Errorf(err, "shutdown error")
	}
}

// serve answers ping with pong to the reply-to address carried in the
// first argument.
func serve(ctx context.Context, m *network.Messenger) {
	m.On("ping", func(args ...any) {
		if len(args) == 0 {
			return
		}
		replyTo, ok := args[0].(string)
		if !ok {
			return
		}
		if err := m.Send(ctx, replyTo, "pong", m.Address(), time.Now().UnixMilli()); err != nil {
			logs.Warnf("%s: pong to %s failed: %v", m.Address(), replyTo, err)
		}
	})
	m.On("pong", func(args ...any) {
		logs.Infof("%s: pong %v", m.Address(), args)
	})
	m.On("say", func(args ...any) {
		logs.Infof("%s: say %v", m.Address(), args)
	})
}

func pingLoop(ctx context.Context, m *network.Messenger, target string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Send(ctx, target, "ping", m.Address()); err != nil {
				logs.Warnf("%s: ping %s failed: %v", m.Address(), target, err)
			}
		}
	}
}
