package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

var modsCmd = &cobra.Command{
	Use:   "mods",
	Short: "List the modification catalog",
	Long:  `Print the loaded modification catalog in search order together with its limits.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := loadSetup()
		if err != nil {
			return err
		}
		cat := st.env.Catalog()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tRule\tDelta\tSpecificity\tFlags")
		for i := 0; i < cat.Len(); i++ {
			r := cat.Rule(i)
			fmt.Fprintf(tw, "%d\t%s\t%.6f\t%c\t%s\n", i+1, r, r.Delta, r.Specificity, ruleFlags(r))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nRare limit: %d\n", cat.RareLimit())
		fmt.Printf("Max modifications: %d\n", st.env.Engine().MaxLevels())
		for _, p := range st.catalog.Profiles {
			fmt.Printf("Custom profile: %s (%d ion types)\n", p.Name, len(p.Ions))
		}
		fmt.Printf("Active profile: %s\n", st.env.Profile().Name())
		return nil
	},
}

func ruleFlags(r *core.ModificationRule) string {
	var flags []string
	if r.Rare {
		flags = append(flags, "rare")
	}
	if r.LimitGroup > 0 {
		flags = append(flags, fmt.Sprintf("limit=%d", r.LimitGroup))
	}
	if r.LabelGroup > 0 {
		flags = append(flags, fmt.Sprintf("label=%d", r.LabelGroup))
	}
	if r.Motif != nil {
		flags = append(flags, "motif="+r.Motif.Pattern)
	}
	if r.Dehydro {
		flags = append(flags, "dehydro")
	}
	if r.MassOffset {
		flags = append(flags, "mass-offset")
	}
	if r.Loss != core.LossNone {
		flags = append(flags, "loss="+r.Loss.String())
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
