package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meshstate/bridge"
	"meshstate/core"
	"meshstate/p2p"
	"meshstate/pkg/config"
	"meshstate/rpc"
)

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run a meshnode: gossip fabric, state engine, RPC surface, bridge watcher",
		Run: func(cmd *cobra.Command, args []string) {
			runNode(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay name (loads config/<env>.yaml on top of default.yaml)")
	return cmd
}

func runNode(env string) {
	log := logrus.StandardLogger()

	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("meshnode: load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}

	store, err := core.OpenDurableStore(cfg.Storage.DBPath, log)
	if err != nil {
		log.Fatalf("meshnode: open storage at %s: %v", cfg.Storage.DBPath, err)
	}
	defer store.Close()

	engine, err := core.NewStateEngine(store, log)
	if err != nil {
		log.Fatalf("meshnode: init state engine: %v", err)
	}

	node, err := p2p.NewNode(p2p.Config{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		RPCAddr:        cfg.RPC.ListenAddr,
	}, engine, log)
	if err != nil {
		log.Fatalf("meshnode: start p2p node: %v", err)
	}
	defer node.Close()

	for _, topic := range []string{p2p.TopicUpdates, p2p.TopicMints, p2p.TopicTokens, p2p.TopicRoots} {
		if err := node.Subscribe(topic); err != nil {
			log.Fatalf("meshnode: subscribe %s: %v", topic, err)
		}
	}

	br := bridge.NewBridge(cfg.Bridge.ID, store, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncSession := p2p.NewSyncSession(rpc.NewClient(), engine, store, log)
	node.SetSyncSession(syncSession)
	syncSession.Start(ctx)

	if cfg.Storage.SnapshotEvery > 0 {
		go checkpointLoop(engine, log, time.Duration(cfg.Storage.SnapshotEvery)*time.Second)
	}
	heartbeat := time.Duration(cfg.Network.RootHeartbeatSeconds) * time.Second
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	go rootAdvertiseLoop(node, engine, log, heartbeat)

	if cfg.RPC.Enabled {
		srv := rpc.NewServer(engine, store, br, node, log)
		log.WithField("addr", cfg.RPC.ListenAddr).Info("meshnode: rpc listening")
		log.Fatal(http.ListenAndServe(cfg.RPC.ListenAddr, srv))
		return
	}

	log.Info("meshnode: rpc disabled, running gossip-only")
	select {}
}

func checkpointLoop(engine *core.StateEngine, log *logrus.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		if err := engine.Checkpoint(); err != nil {
			log.Warnf("meshnode: checkpoint: %v", err)
		}
	}
}

func rootAdvertiseLoop(node *p2p.Node, engine *core.StateEngine, log *logrus.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		score, err := engine.ConsensusScore()
		if err != nil {
			log.Warnf("meshnode: consensus score: %v", err)
			continue
		}
		if err := node.PublishRoot(score); err != nil {
			log.Debugf("meshnode: publish root: %v", err)
		}
	}
}
