package cli

import (
	"context"
	"strconv"

	"github.com/calvinalkan/uren/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execPrintConfig(o, cfg)
		},
	}
}

func execPrintConfig(o *IO, cfg *config.Config) error {
	o.Println("effective_cwd=" + cfg.EffectiveCwd)
	o.Println("data_dir=" + cfg.DataDirAbs)
	o.Println("backend=" + cfg.Backend)
	o.Println("log_level=" + cfg.Level.String())
	o.Println("page_size=" + strconv.Itoa(cfg.PageSize))

	if cfg.Editor != "" {
		o.Println("editor=" + cfg.Editor)
	}

	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Explicit == "" {
		o.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			o.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Explicit != "" {
			o.Println("explicit_config=" + cfg.Sources.Explicit)
		}
	}

	return nil
}
