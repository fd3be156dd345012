package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
}

var rootCmd = &cobra.Command{
	Use:   "theme_synth",
	Short: "Synthesize cross-customer themes from interview findings",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "configs/config.yaml", "配置文件路径")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "密钥环境变量文件，不存在时忽略")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(themesCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
