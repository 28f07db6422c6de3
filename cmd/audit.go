package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/keypool/cmd/common"
	"github.com/warpdl/keypool/pkg/keypool"
)

var (
	auditWindow int64

	auditFlags = []cli.Flag{
		cli.Int64Flag{
			Name:        "window, w",
			Usage:       "number of handles, from 0, checked for the partition after every step",
			Value:       DEF_AUDIT_WINDOW,
			Destination: &auditWindow,
		},
	}
)

type scenarioStep struct {
	op     string // "allocate" or "release"
	handle keypool.Handle
}

// referenceScenario allocates three handles, recycles the middle one and
// then frees both ends so the lowest handle is taken again.
var referenceScenario = []scenarioStep{
	{"allocate", 0},
	{"allocate", 1},
	{"allocate", 2},
	{"release", 1},
	{"allocate", 1},
	{"release", 0},
	{"release", 2},
	{"allocate", 0},
}

func audit(ctx *cli.Context) error {
	if auditWindow <= 0 || auditWindow > int64(keypool.MaxAuditWindow) {
		return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("window must be in [1, %s]", humanize.Comma(int64(keypool.MaxAuditWindow))))
	}
	if err := runScenario(ctx.App.Writer, referenceScenario, keypool.Handle(auditWindow)); err != nil {
		common.PrintRuntimeErr(ctx, "audit", "scenario", err)
	}
	return nil
}

// runScenario replays steps on a fresh pool, printing the free ranges after
// each one. It stops at the first step whose outcome differs.
func runScenario(w io.Writer, steps []scenarioStep, window keypool.Handle) error {
	p := keypool.New[struct{}]()
	fmt.Fprintf(w, "start    free=%s\n", formatRanges(p.FreeRanges()))
	for i, st := range steps {
		switch st.op {
		case "allocate":
			h, err := p.Allocate()
			if err != nil {
				return fmt.Errorf("%s step: %w", humanize.Ordinal(i+1), err)
			}
			if h != st.handle {
				return fmt.Errorf("%s step: allocate returned %d, expected %d", humanize.Ordinal(i+1), h, st.handle)
			}
		case "release":
			if err := p.Release(st.handle); err != nil {
				return fmt.Errorf("%s step: %w", humanize.Ordinal(i+1), err)
			}
		default:
			return fmt.Errorf("%s step: unknown operation %q", humanize.Ordinal(i+1), st.op)
		}
		if err := p.Audit(window); err != nil {
			return fmt.Errorf("%s step: %w", humanize.Ordinal(i+1), err)
		}
		fmt.Fprintf(w, "%-4s %-8s %d  free=%s\n", humanize.Ordinal(i+1), st.op, st.handle, formatRanges(p.FreeRanges()))
	}
	fmt.Fprintf(w, "partition ok over [0,%s): %s allocated, %s free ranges\n",
		humanize.Comma(int64(window)),
		humanize.Comma(int64(p.Len())),
		humanize.Comma(int64(len(p.FreeRanges()))),
	)
	return nil
}

func formatRanges(rs []keypool.Range) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		switch {
		case r.End == keypool.Unbounded:
			parts[i] = fmt.Sprintf("[%d,∞)", r.Start)
		case r.Start == r.End:
			parts[i] = fmt.Sprintf("[%d]", r.Start)
		default:
			parts[i] = fmt.Sprintf("[%d,%d]", r.Start, r.End)
		}
	}
	return strings.Join(parts, " ")
}
