package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	sectors uint32
)

var rootCmd = &cobra.Command{
	Use:   "pintosctl",
	Short: "Format, inspect, and browse pintos-kernel disk images",
	Long: `pintosctl is a host-side tool for the pintos teaching-kernel file
system: it formats disk image files, reports on their free-map usage and
instance UUID, and lists or browses their directory tree without running
the kernel itself.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.pintosctl.yaml)")
	rootCmd.PersistentFlags().Uint32Var(&sectors, "sectors", 65536, "device size in 512-byte sectors, used by mkfs")
	viper.BindPFlag("sectors", rootCmd.PersistentFlags().Lookup("sectors"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".pintosctl")
		}
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "pintosctl: using config file", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
