package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

var importFlags struct {
	tenant string
	file   string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import upstream findings from a JSON file into the store",
	RunE:  runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.tenant, "tenant", "", "租户 ID (必填)")
	f.StringVar(&importFlags.file, "file", "", "发现 JSON 文件，内容为 Finding 数组 (必填)")
	_ = importCmd.MarkFlagRequired("tenant")
	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(importFlags.file)
	if err != nil {
		return err
	}
	var findings []*model.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return fmt.Errorf("解析发现文件失败: %w", err)
	}
	for i, f := range findings {
		if f.ID == "" {
			return fmt.Errorf("第 %d 条发现缺少 finding_id", i+1)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ImportFindings(cmd.Context(), importFlags.tenant, findings); err != nil {
		return err
	}
	logger.Log.Infof("已导入 %d 条发现到租户 [%s]", len(findings), importFlags.tenant)
	return nil
}
