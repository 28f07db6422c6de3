package cmd

import "time"

const (
	DEF_CEILING          = 0 // unbounded
	DEF_SHUTDOWN_TIMEOUT = 30
	DEF_SIM_TIMERS       = 8
	DEF_SIM_REPEAT       = 5
	DEF_SIM_INTERVAL     = 100 * time.Millisecond
	DEF_AUDIT_WINDOW     = 64
	DEF_POLL_INTERVAL    = 50 * time.Millisecond
)

const DESCRIPTION = `
Keypool hands out small integer handles from a pool that always
returns the lowest free one, and runs repeatable timers whose
handles come back to the pool when they stop.
`

const (
	ServeDescription = `The serve command starts the keypool daemon. It exposes one
handle pool and one timer scheduler over JSON-RPC 2.0 on
HTTP (/jsonrpc) and WebSocket (/jsonrpc/ws). Timer firings
are pushed to WebSocket sessions as "timer.fired".

Every call must carry "Authorization: Bearer <secret>". A
random secret is generated and printed when none is given.

Example:
        keypool serve --port 4790 --secret s3cret

`
	RunDescription = `The run command executes a behavior script. The script gets
the keyPool(), timer(), unique(), forget(), uuid4(), print()
and require() globals, and the command exits once every
timer it started has stopped.

Example:
        keypool run ./behaviors/blink.js

`
	SimulateDescription = `The simulate command arms a number of repeating timers on
the real event loop and reports how their handles were
allocated and recycled.

Example:
        keypool simulate --timers 16 --repeat 3 --interval 250ms

`
	AuditDescription = `The audit command replays the reference allocation scenario
on a fresh pool, printing every step with the free ranges,
and checks that free and allocated handles partition the
domain.

Example:
        keypool audit

`
)

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`
