package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixml/modelprep"
	"github.com/helixml/modelprep/application/service"
)

func listCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the models in the manifest and their local artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listModels(cmd.OutOrStdout(), flags)
		},
	}
}

func listModels(out io.Writer, flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	client, err := modelprep.New(modelprep.WithConfig(cfg), modelprep.WithoutHistory())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSOURCE\tFORMAT\tOUTPUT\tSTATUS")
	for _, m := range client.Catalog().Models() {
		artifacts, err := client.Inspect(m.Name())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Name(), m.Source(), m.Format(), m.Output(), artifactStatus(artifacts))
	}
	return w.Flush()
}

func artifactStatus(a service.Artifacts) string {
	switch {
	case a.Ready():
		return "ready"
	case a.Extracted:
		return "extracted"
	case a.Archive:
		return "downloaded"
	default:
		return "missing"
	}
}
