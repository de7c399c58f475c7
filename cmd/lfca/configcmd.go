package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective analysis configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if vr := opts.Validate(); vr.HasErrors() {
			fmt.Print(vr.Error())
		}

		data, err := yaml.Marshal(opts)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
