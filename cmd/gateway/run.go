// cmd/gateway/run.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/config"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/connectivity"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/firmware"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/logging"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/mqtt"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/ota"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/poller"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/publisher"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func run(ctx context.Context, cfgPath, envPath string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath, envPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	log, level, err := logging.Leveled(os.Stdout, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	log.Info("firmware version", "version", version, "device_id", cfg.Gateway.DeviceID)

	m := metrics.New()
	links := &status.Links{}
	topics := mqtt.Topics{Base: cfg.MQTT.Topic, DeviceID: cfg.Gateway.DeviceID}

	// --------------------
	// Field bus + acquisition
	// --------------------

	p, closeBus, err := poller.Build(cfg, log, m)
	if err != nil {
		return fmt.Errorf("poller build failed: %w", err)
	}
	defer closeBus()

	// --------------------
	// Messaging
	// --------------------

	router := mqtt.NewRouter(topics, log)
	mc, err := mqtt.New(mqtt.Config{
		Broker:         cfg.MQTT.Broker,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Topics:         topics,
		ConnectTimeout: ms(cfg.MQTT.ConnectMs),
	}, router, log)
	if err != nil {
		return err
	}
	defer mc.Close()

	pub, err := publisher.New(publisher.Config{
		Topic:  topics.Data(),
		QoS:    0,
		Retain: true,
		Format: cfg.MQTT.Format,
	}, mc, log, m)
	if err != nil {
		return err
	}
	health := publisher.NewStatusWriter(topics.Health(), mc)

	// --------------------
	// Poll scheduler
	// --------------------

	var (
		sched *poller.Scheduler
		coord *ota.Coordinator
	)

	snapshot := func() status.Snapshot {
		s := status.Snapshot{
			Version:     version,
			DeviceID:    cfg.Gateway.DeviceID,
			Links:       links.Connectivity(),
			PollEnabled: sched.Enabled(),
			PollRunning: sched.Running(),
			UpdateState: ota.Dormant.String(),
		}
		if coord != nil {
			s.UpdateState = coord.State().String()
		}
		return status.Encode(s)
	}
	writeStatus := func() {
		if err := health.WriteStatus(snapshot()); err != nil {
			log.Debug("health publish failed", "err", err)
		}
	}

	publishCycle := p.Cycle(pub)
	sched, err = poller.NewScheduler(ms(cfg.Poll.IntervalMs), func(ctx context.Context) {
		publishCycle(ctx)
		writeStatus()
	}, log, m)
	if err != nil {
		return err
	}

	// --------------------
	// Connectivity
	// --------------------

	netlink := connectivity.NewInterfaceLink(cfg.Network.Interface, log)
	sup, err := connectivity.New(connectivity.Config{
		NetworkRetry:   ms(cfg.Network.ReconnectMs),
		MessagingRetry: ms(cfg.MQTT.ReconnectMs),
	}, netlink, mc, links, log, m)
	if err != nil {
		return err
	}
	mc.OnConnectionLost(sup.MessagingDown)

	if cfg.Network.MDNS {
		ann := connectivity.NewAnnouncer(cfg.Gateway.DeviceID, mdnsPort(cfg.Metrics.Listen), []string{"version=" + version}, log)
		defer ann.Close()
		sup.AfterNetworkUp(ann.Step())
	}
	if cfg.Network.NTPServer != "" {
		sup.AfterNetworkUp(connectivity.NTPStep(cfg.Network.NTPServer, 5*time.Second, log))
	}
	sup.OnMessagingUp(func() {
		health.Reassert()
		writeStatus()
	})

	// --------------------
	// Update coordinator
	// --------------------

	if cfg.OTA.URL != "" {
		storage, err := firmware.NewFileStorage(cfg.OTA.StagingDir, cfg.OTA.ImagePath)
		if err != nil {
			return err
		}
		hc, err := ota.NewHTTPClient(cfg.OTA.CAFile, ms(cfg.OTA.TimeoutMs))
		if err != nil {
			return err
		}
		restarter := &firmware.ExecRestarter{
			Path: cfg.OTA.ImagePath,
			Log:  log,
			Before: func() {
				log.Info("************************ REBOOT IN PROGRESS *************************")
				mc.Close()
				_ = closeBus()
			},
		}

		coord, err = ota.New(ota.Config{
			URL:            cfg.OTA.URL,
			CurrentVersion: version,
			VersionHeader:  cfg.OTA.VersionHeader,
		}, ota.Deps{
			Poll:      sched,
			Storage:   storage,
			Restarter: restarter,
			Links:     sup,
			HTTP:      hc,
		}, log, m)
		if err != nil {
			return err
		}
		coord.OnTransition(func(_, _ ota.State) { writeStatus() })
		router.Handle(mqtt.VerbUpgrade, func([]byte) { coord.Trigger() })
	} else {
		router.Handle(mqtt.VerbUpgrade, func([]byte) {
			log.Warn("upgrade requested but ota.url is not configured")
		})
	}

	router.Handle(mqtt.VerbLogLevel, func(payload []byte) {
		l, err := logging.ParseCommandLevel(string(payload))
		if err != nil {
			log.Error("invalid requested log level", "payload", string(payload), "err", err)
			return
		}
		level.Set(l)
		log.Info("log level changed", "level", l)
	})

	// --------------------
	// Run
	// --------------------

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return sup.Run(ctx) })
	g.Go(func() error {
		netlink.Watch(ctx, ms(cfg.Network.WatchMs), sup)
		return nil
	})
	if coord != nil {
		g.Go(func() error { return coord.Run(ctx) })
	}
	if cfg.Metrics.Listen != "" {
		h := metrics.NewRouter(m, func() any { return snapshot() })
		g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Listen, h) })
		log.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

// mdnsPort is the port of the HTTP surface. Validate guarantees it parses.
func mdnsPort(listen string) int {
	_, port, _ := net.SplitHostPort(listen)
	n, _ := strconv.Atoi(port)
	return n
}
