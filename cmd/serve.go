package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/warpdl/keypool/cmd/common"
	sharedcommon "github.com/warpdl/keypool/common"
	"github.com/warpdl/keypool/internal/daemon"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
)

var (
	servePort      int
	serveSecret    string
	serveCeiling   int64
	serveTimeout   int
	serveListenAll bool
	serveDebug     bool
	serveKeyring   bool
	serveMaxConns  int

	serveFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "port, p",
			Usage:       "TCP port of the JSON-RPC endpoints",
			EnvVar:      sharedcommon.PortEnv,
			Value:       sharedcommon.DefaultPort,
			Destination: &servePort,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "bearer token required by every call (generated when empty)",
			EnvVar:      sharedcommon.SecretEnv,
			Destination: &serveSecret,
		},
		cli.Int64Flag{
			Name:        "ceiling, c",
			Usage:       "highest handle of the pool and timer domains (0 = unbounded)",
			EnvVar:      sharedcommon.CeilingEnv,
			Value:       DEF_CEILING,
			Destination: &serveCeiling,
		},
		cli.IntFlag{
			Name:        "shutdown-timeout",
			Usage:       "graceful shutdown budget in seconds (0 = wait forever)",
			EnvVar:      sharedcommon.ShutdownTimeoutEnv,
			Value:       DEF_SHUTDOWN_TIMEOUT,
			Destination: &serveTimeout,
		},
		cli.BoolFlag{
			Name:        "listen-all",
			Usage:       "bind every interface instead of loopback only",
			EnvVar:      sharedcommon.ListenAllEnv,
			Destination: &serveListenAll,
		},
		cli.BoolFlag{
			Name:        "keyring, k",
			Usage:       "reuse the secret stored in the OS keyring, storing a generated one there",
			Destination: &serveKeyring,
		},
		cli.IntFlag{
			Name:        "max-conns",
			Usage:       "maximum simultaneous connections (0 = no limit)",
			Destination: &serveMaxConns,
		},
		cli.BoolFlag{
			Name:        "debug, d",
			Usage:       "enable debug logging",
			EnvVar:      sharedcommon.DebugEnv,
			Destination: &serveDebug,
		},
	}
)

// shutdownContext is replaced in tests to stop the daemon without a signal.
var shutdownContext = setupShutdownHandler

func newLogger(debug bool) logger.Logger {
	return logger.NewStandardLogger(log.New(os.Stderr, "keypool: ", log.LstdFlags), debug)
}

func serve(ctx *cli.Context) error {
	if serveCeiling < 0 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("ceiling must not be negative"))
	}
	if serveTimeout < 0 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("shutdown timeout must not be negative"))
	}
	if serveMaxConns < 0 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("max-conns must not be negative"))
	}
	l := newLogger(serveDebug)
	defer l.Close()

	secret, generated, err := resolveSecret(serveSecret, serveKeyring)
	if err != nil {
		common.PrintRuntimeErr(ctx, "serve", "secret", err)
		return nil
	}
	if generated {
		fmt.Fprintf(ctx.App.Writer, "generated RPC secret: %s\n", secret)
	}
	r := daemon.New(&daemon.Config{
		Port:            servePort,
		ListenAll:       serveListenAll,
		MaxConns:        serveMaxConns,
		Secret:          secret,
		Ceiling:         keypool.Handle(serveCeiling),
		ShutdownTimeout: time.Duration(serveTimeout) * time.Second,
		Version:         currentBuildArgs.Version,
		Commit:          currentBuildArgs.Commit,
		BuildType:       currentBuildArgs.BuildType,
	}, &daemon.Dependencies{Logger: l})

	sctx, cancel := shutdownContext()
	defer cancel()
	// a done shutdown context is the normal way out
	if err := r.Start(sctx); err != nil && sctx.Err() == nil {
		common.PrintRuntimeErr(ctx, "serve", "start", err)
		return nil
	}
	l.Info("daemon stopped")
	return nil
}
