package cli

import (
	"github.com/spf13/cobra"

	"audittrail/audit/repository"
	"audittrail/errors"
)

// HistoryOptions history 命令参数
type HistoryOptions struct {
	*RootOptions
	Model string
	ID    int64
}

// NewHistoryCommand 创建 history 命令
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the units of work that changed a record",
		Long: `Lists every service history whose operations touched the given record,
newest first, together with all operations recorded under it.

Examples:
  auditdemo history --model customer --id 1790000000000000000
  auditdemo history --model order_lines --id 42 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "model or table name (required)")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "record id (required)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	rt, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	meta, ok := lookupModel(rt.Schema, opts.Model)
	if !ok {
		return errors.NewError(errors.ErrCodeInvalidInput, "未知模型").WithContext("model", opts.Model)
	}

	ctx := cmd.Context()
	s := rt.ReadSession()
	services, err := repository.NewServicesRepository(s).ListServices(ctx, meta.Type, opts.ID)
	if err != nil {
		return err
	}

	ops := repository.NewOperationsRepository(s)
	views := make([]ServiceView, 0, len(services))
	for _, sh := range services {
		view, err := loadServiceView(ctx, ops, sh)
		if err != nil {
			return err
		}
		views = append(views, view)
	}
	return writeServices(cmd.OutOrStdout(), opts.Format, views)
}
