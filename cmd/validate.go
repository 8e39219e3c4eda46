package cmd

import (
	"fmt"
	"strings"

	"departureboard/pkg/config"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the board configuration and print a summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d stations, %d events, %d posters\n",
			opts.configPath, len(cfg.Stations), len(cfg.Events), len(cfg.Posters))
		for _, st := range cfg.Stations {
			fmt.Fprintf(out, "  %-12s %-28s row %d col %d  night %s  day %s  night %s\n",
				st.ID, st.Title, st.Row, st.Col,
				st.NightWindow, describe(st.Day), describe(st.Night))
		}
		return nil
	},
}

func describe(o *config.DirectionsAndProducts) string {
	if o == nil {
		return "-"
	}
	dirs := make([]string, len(o.Directions))
	for i, d := range o.Directions {
		if d == "" {
			d = "*"
		}
		dirs[i] = d
	}
	return fmt.Sprintf("[%s]", strings.Join(dirs, ","))
}
