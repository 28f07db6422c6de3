// Package cmd implements the keypool command-line interface.
package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli"
	"github.com/warpdl/keypool/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

// appWriter receives command output.
var appWriter io.Writer = os.Stdout

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "keypool",
		HelpName:              "keypool",
		Usage:                 "A lowest-first handle pool with repeatable timers.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "keypool <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Writer:                appWriter,
		Commands: []cli.Command{
			{
				Name:               "serve",
				Aliases:            []string{"s"},
				Usage:              "start the JSON-RPC daemon",
				Action:             serve,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        ServeDescription,
				Flags:              serveFlags,
			},
			{
				Name:               "run",
				Aliases:            []string{"r"},
				Usage:              "execute a behavior script",
				UsageText:          "<script.js>",
				Action:             run,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        RunDescription,
				Flags:              runFlags,
			},
			{
				Name:                   "simulate",
				Aliases:                []string{"sim"},
				Usage:                  "arm repeating timers and report handle reuse",
				Action:                 simulate,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            SimulateDescription,
				UseShortOptionHandling: true,
				Flags:                  simFlags,
			},
			{
				Name:               "audit",
				Aliases:            []string{"a"},
				Usage:              "replay the reference allocation scenario",
				Action:             audit,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        AuditDescription,
				Flags:              auditFlags,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of keypool",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
