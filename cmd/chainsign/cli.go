package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errChainInvalid = errors.New("chain is invalid")

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chainsign",
		Short:         "Offline tools for chainsign device keys and transaction chains.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVerifyCommand(), newKeygenCommand())
	return root
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errChainInvalid) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}
