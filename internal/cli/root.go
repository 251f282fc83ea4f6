// Package cli 实现 auditdemo 命令行：演示审计流程并查询记录的变更历史
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"audittrail/config"
)

// RootOptions 全局参数
type RootOptions struct {
	ConfigPath string
	DSN        string
	Format     string // text|json
}

// ValidFormats 支持的输出格式
var ValidFormats = []string{"text", "json"}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "auditdemo",
		Short: "Audit trail demo",
		Long:  "Runs audited units of work against the configured database and queries the recorded history.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "audit.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// open 加载配置并装配运行时
func (o *RootOptions) open(cmd *cobra.Command) (*Runtime, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.DSN != "" {
		cfg.Database.DSN = o.DSN
	}
	return Open(cmd.Context(), cfg, cmd.ErrOrStderr())
}
