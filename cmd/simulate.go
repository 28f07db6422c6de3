package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/warpdl/keypool/cmd/common"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
	"github.com/warpdl/keypool/pkg/scheduler"
)

var (
	simTimers   int
	simRepeat   int
	simInterval time.Duration
	simQuiet    bool

	simFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "timers, n",
			Usage:       "number of timers to arm",
			Value:       DEF_SIM_TIMERS,
			Destination: &simTimers,
		},
		cli.IntFlag{
			Name:        "repeat, r",
			Usage:       "firings per timer",
			Value:       DEF_SIM_REPEAT,
			Destination: &simRepeat,
		},
		cli.DurationFlag{
			Name:        "interval, i",
			Usage:       "base interval between firings",
			Value:       DEF_SIM_INTERVAL,
			Destination: &simInterval,
		},
		cli.BoolFlag{
			Name:        "quiet, q",
			Usage:       "hide the progress bar",
			Destination: &simQuiet,
		},
	}
)

type simConfig struct {
	timers   int
	repeat   int
	interval time.Duration
}

type simReport struct {
	Fired     int
	Timers    int
	Peak      int
	MaxHandle keypool.Handle
	Firings   map[keypool.Handle]int
	Remaining int
	Elapsed   time.Duration
}

func simulate(ctx *cli.Context) error {
	switch {
	case simTimers <= 0:
		return common.PrintErrWithCmdHelp(ctx, errors.New("timers must be positive"))
	case int64(simTimers) > int64(keypool.MaxAuditWindow):
		return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("timers must be at most %s", humanize.Comma(int64(keypool.MaxAuditWindow))))
	case simRepeat <= 0:
		return common.PrintErrWithCmdHelp(ctx, errors.New("repeat must be positive"))
	case simInterval <= 0:
		return common.PrintErrWithCmdHelp(ctx, errors.New("interval must be positive"))
	}
	l := newLogger(false)
	defer l.Close()

	sctx, cancel := shutdownContext()
	defer cancel()
	loop := scheduler.NewLoop(sctx, l)
	defer loop.Close()

	out := ctx.App.Writer
	var p *mpb.Progress
	if simQuiet {
		p = mpb.New(mpb.WithOutput(nil))
	} else {
		p = mpb.New(mpb.WithOutput(out), mpb.WithWidth(64))
	}
	bar := common.InitBar(p, "Firing", int64(simTimers*simRepeat))

	rep, err := runSimulation(sctx, loop, l, simConfig{
		timers:   simTimers,
		repeat:   simRepeat,
		interval: simInterval,
	}, bar.Increment)
	if err != nil {
		bar.Abort(false)
		p.Wait()
		common.PrintRuntimeErr(ctx, "simulate", "run", err)
		return nil
	}
	p.Wait()
	printSimReport(out, rep)
	return nil
}

// runSimulation arms cfg.timers repeating timers on loop, staggered over
// three intervals, and waits until every firing happened.
func runSimulation(ctx context.Context, loop *scheduler.Loop, l logger.Logger, cfg simConfig, onFire func()) (*simReport, error) {
	total := cfg.timers * cfg.repeat
	rep := &simReport{
		Timers:  cfg.timers,
		Firings: make(map[keypool.Handle]int, cfg.timers),
	}
	done := make(chan struct{})
	var sched *scheduler.Scheduler

	start := time.Now()
	err := loop.Do(ctx, func() error {
		sched = scheduler.New(loop, scheduler.WithLogger(l))
		for i := 0; i < cfg.timers; i++ {
			d := cfg.interval * time.Duration(i%3+1)
			_, err := sched.Schedule(d, func(e scheduler.Event) {
				h := e.Dispatcher.Handle()
				rep.Fired++
				rep.Firings[h]++
				if h > rep.MaxHandle {
					rep.MaxHandle = h
				}
				onFire()
				if rep.Fired == total {
					close(done)
				}
			}, scheduler.WithRepeat(cfg.repeat), scheduler.WithTag("sim"))
			if err != nil {
				return err
			}
		}
		rep.Peak = sched.Len()
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	rep.Elapsed = time.Since(start)

	// runs after the last callback returned, so its handle is already back
	err = loop.Do(ctx, func() error {
		rep.Remaining = sched.Len()
		return sched.Audit(keypool.Handle(cfg.timers))
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func printSimReport(w io.Writer, rep *simReport) {
	rate := float64(rep.Fired) / rep.Elapsed.Seconds()
	fmt.Fprintf(w, "fired %s events from %s timers in %s (%s/s)\n",
		humanize.Comma(int64(rep.Fired)),
		humanize.Comma(int64(rep.Timers)),
		rep.Elapsed.Round(time.Millisecond),
		humanize.FormatFloat("#,###.##", rate),
	)
	fmt.Fprintf(w, "handles used: %s (0..%d), peak live timers: %s\n",
		humanize.Comma(int64(len(rep.Firings))),
		rep.MaxHandle,
		humanize.Comma(int64(rep.Peak)),
	)
	fmt.Fprintf(w, "after run: %s live timers, partition ok\n", humanize.Comma(int64(rep.Remaining)))
}
