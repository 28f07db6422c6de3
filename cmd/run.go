package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"github.com/warpdl/keypool/cmd/common"
	sharedcommon "github.com/warpdl/keypool/common"
	"github.com/warpdl/keypool/internal/behavior"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/scheduler"
)

var (
	runCeiling int64
	runTimeout time.Duration
	runDebug   bool

	runFlags = []cli.Flag{
		cli.Int64Flag{
			Name:        "ceiling, c",
			Usage:       "highest handle of every pool the script creates (0 = unbounded)",
			EnvVar:      sharedcommon.CeilingEnv,
			Value:       DEF_CEILING,
			Destination: &runCeiling,
		},
		cli.DurationFlag{
			Name:        "timeout, t",
			Usage:       "stop the script after this long even if timers remain (0 = no limit)",
			Destination: &runTimeout,
		},
		cli.BoolFlag{
			Name:        "debug, d",
			Usage:       "enable debug logging",
			EnvVar:      sharedcommon.DebugEnv,
			Destination: &runDebug,
		},
	}
)

// scriptFs is the filesystem behavior scripts and their modules load from.
var scriptFs afero.Fs = afero.NewOsFs()

// ceilingOf maps the CLI convention (0 = unbounded) to a handle ceiling.
func ceilingOf(v int64) keypool.Handle {
	if v == 0 {
		return keypool.Unbounded
	}
	return keypool.Handle(v)
}

func run(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no script provided"))
	}
	if runCeiling < 0 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("ceiling must not be negative"))
	}
	l := newLogger(runDebug)
	defer l.Close()

	sctx, cancel := shutdownContext()
	defer cancel()
	if runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		sctx, cancelTimeout = context.WithTimeout(sctx, runTimeout)
		defer cancelTimeout()
	}

	loop := scheduler.NewLoop(sctx, l)
	defer loop.Close()

	rt, err := behavior.New(loop,
		behavior.WithFs(scriptFs),
		behavior.WithOutput(ctx.App.Writer),
		behavior.WithLogger(l),
		behavior.WithCeiling(ceilingOf(runCeiling)),
	)
	if err != nil {
		common.PrintRuntimeErr(ctx, "run", "new_runtime", err)
		return nil
	}
	err = loop.Do(sctx, func() error {
		_, err := rt.RunFile(path)
		return err
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "run", "script", err)
		return nil
	}
	if err := waitIdle(sctx, loop, rt); err != nil {
		l.Warning("script %s interrupted: %v", path, err)
	}
	// the loop may already be gone after a signal; nothing is left to stop then
	if err := loop.Do(context.Background(), rt.Close); err != nil && !errors.Is(err, scheduler.ErrLoopClosed) {
		common.PrintRuntimeErr(ctx, "run", "close", err)
	}
	return nil
}

// waitIdle blocks until the script has no running timer or ctx ends.
func waitIdle(ctx context.Context, loop *scheduler.Loop, rt *behavior.Runtime) error {
	ticker := time.NewTicker(DEF_POLL_INTERVAL)
	defer ticker.Stop()
	for {
		idle := false
		err := loop.Do(ctx, func() error {
			idle = rt.Idle()
			return nil
		})
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
