package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/embedding/factory"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/engine"
	llmfactory "github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm/factory"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
)

var runFlags struct {
	tenant string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one synthesis pass for a tenant and print the run summary",
	RunE:  runSynthesis,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.tenant, "tenant", "", "租户 ID (必填)")
	_ = runCmd.MarkFlagRequired("tenant")
}

func runSynthesis(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	completer, err := llmfactory.NewCompleter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("LLM 初始化失败: %w", err)
	}
	embedder, closeEmbedder, err := factory.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("向量服务初始化失败: %w", err)
	}
	defer closeEmbedder()

	e, err := engine.NewEngine(cfg, engine.Deps{
		Store:     store,
		Recorder:  store,
		Completer: completer,
		Embedder:  embedder,
	})
	if err != nil {
		return err
	}

	logger.Log.Infof("启动主题合成，租户 [%s]", runFlags.tenant)
	summary, runErr := e.Run(ctx, runFlags.tenant)

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return runErr
}
