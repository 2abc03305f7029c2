// Command kuduping dials a single Kudu master endpoint, negotiates a
// session, sends a Ping RPC, and reports whether it succeeded. It exists to
// exercise rpc.Proxy end to end the way a real call site would, not as a
// general-purpose Kudu client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phuhao00/kudugo/config"
	"github.com/phuhao00/kudugo/infra/metrics"
	"github.com/phuhao00/kudugo/rpc"
	"github.com/phuhao00/kudugo/rpc/master"
)

const serverName = "kuduping"

var (
	configPath = flag.String("config", "", "path to a kuduping client config YAML file")
	addr       = flag.String("addr", "127.0.0.1:7051", "master address (host:port); overridden by -config's addr if set")
	timeout    = flag.Duration("timeout", 5*time.Second, "Ping RPC deadline")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("%s starting...", serverName)

	opts := rpc.DefaultConnectionOptions()
	target := *addr
	if *configPath != "" {
		cfg, err := config.LoadClientConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load client config: %v", err)
		}
		opts = cfg.ConnectionOptions()
		if cfg.Addr != "" {
			target = cfg.Addr
		}
	}

	endpointMetrics := metrics.NewEndpointMetrics(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("%s shutting down...", serverName)
		cancel()
	}()

	proxy := rpc.Spawn(ctx, target, opts, endpointMetrics)
	defer proxy.Close()

	deadline := time.Now().Add(*timeout)
	call, err := master.Ping(ctx, proxy, deadline)
	if err != nil {
		log.Fatalf("ping: %v", err)
	}

	select {
	case <-call.Done:
		if call.Error != nil {
			log.Fatalf("ping to %s failed: %v", target, call.Error)
		}
		log.Printf("ping to %s succeeded", target)
	case <-ctx.Done():
		log.Printf("%s interrupted before ping completed", serverName)
	}
}
