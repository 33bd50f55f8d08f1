package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "morgus",
	Short: "Morgus is an autonomous task orchestration agent",
	Long: `Morgus takes high-level goals and delivers complete, working solutions.
It drives each task through research, planning, building, execution and
finalization inside an isolated sandbox.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $HOME/.morgus-config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("server", "http://localhost:8000", "Morgus API server address")

	viper.SetEnvPrefix("MORGUS")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}
