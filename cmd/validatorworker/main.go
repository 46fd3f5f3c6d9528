// Command validatorworker runs the OUTPACE validator worker: it ticks
// every channel the configured identity validates, producing NewState,
// ApproveState, RejectState, or Heartbeat messages against a sentry
// service, per spec.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/outpace-network/validatorworker/adapter"
	"github.com/outpace-network/validatorworker/adapter/dummy"
	"github.com/outpace-network/validatorworker/adapter/ethereum"
	"github.com/outpace-network/validatorworker/config"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/scheduler"
	"github.com/outpace-network/validatorworker/sentry"
	"github.com/outpace-network/validatorworker/store/localcache"
)

var (
	adapterFlag = &cli.StringFlag{
		Name:     "adapter",
		Usage:    `signing adapter: "ethereum" or "dummy"`,
		Required: true,
	}
	keystoreFileFlag = &cli.StringFlag{
		Name:  "keystoreFile",
		Usage: "path to the ethereum adapter's keystore file",
	}
	dummyIdentityFlag = &cli.StringFlag{
		Name:  "dummyIdentity",
		Usage: "identity string for the dummy adapter",
	}
	sentryURLFlag = &cli.StringFlag{
		Name:  "sentryUrl",
		Usage: "base URL of the sentry service",
		Value: "http://127.0.0.1:8005",
	}
	singleTickFlag = &cli.BoolFlag{
		Name:  "singleTick",
		Usage: "run exactly one tick cycle then exit",
	}
	cacheDirFlag = &cli.StringFlag{
		Name:  "cacheDir",
		Usage: "optional directory for the local Accounting checkpoint cache",
	}
)

func main() {
	app := &cli.App{
		Name:  "validatorworker",
		Usage: "OUTPACE payment-channel validator worker",
		Flags: []cli.Flag{
			adapterFlag, keystoreFileFlag, dummyIdentityFlag,
			sentryURLFlag, singleTickFlag, cacheDirFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Defaults()
	cfg.Adapter = config.AdapterKind(c.String(adapterFlag.Name))
	cfg.KeystoreFile = c.String(keystoreFileFlag.Name)
	cfg.DummyIdentity = c.String(dummyIdentityFlag.Name)
	cfg.SentryURL = c.String(sentryURLFlag.Name)
	cfg.SingleTick = c.Bool(singleTickFlag.Name)
	cfg.KeystorePwd = os.Getenv("KEYSTORE_PWD")

	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}

	signer, err := buildSigner(cfg)
	if err != nil {
		return cli.Exit(fmt.Errorf("adapter init failed: %w", err), 1)
	}

	ctx := context.Background()
	if err := signer.Init(ctx); err != nil {
		return cli.Exit(fmt.Errorf("adapter init failed: %w", err), 1)
	}
	if err := signer.Unlock(ctx, cfg.KeystorePwd); err != nil {
		return cli.Exit(fmt.Errorf("adapter unlock failed: %w", err), 1)
	}

	client := sentry.Client(sentry.NewHTTPClient(cfg.SentryURL, nil))
	if dir := c.String(cacheDirFlag.Name); dir != "" {
		cache, err := localcache.Open(dir)
		if err != nil {
			return cli.Exit(fmt.Errorf("local cache open failed: %w", err), 1)
		}
		defer cache.Close()
		client = sentry.NewCachingClient(client, cache)
	}

	logging.Info("validator worker starting", "adapter", cfg.Adapter, "identity", signer.WhoAmI(), "sentryUrl", cfg.SentryURL)

	sched := scheduler.New(cfg, signer, client)

	if cfg.SingleTick {
		return sched.RunOnce(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		logging.Info("received termination signal, draining current cycle")
		cancel()
	}()

	return sched.Run(runCtx)
}

func buildSigner(cfg config.Config) (adapter.Signer, error) {
	switch cfg.Adapter {
	case config.AdapterEthereum:
		return ethereum.New(cfg.KeystoreFile), nil
	case config.AdapterDummy:
		return dummy.New(cfg.DummyIdentity), nil
	default:
		return nil, config.ErrUnknownAdapter
	}
}
