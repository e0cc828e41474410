package cmd

import (
	"github.com/spf13/cobra"

	"vodpack"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve vodpack server",
		Long:  `serve vodpack upload and playback server`,
		Run:   vodpack.Service.ServeCommand,
	}

	root.AddCommand(command)
}
