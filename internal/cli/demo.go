package cli

import (
	"context"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"audittrail/audit"
	"audittrail/audit/repository"
	"audittrail/data/session"
	"audittrail/logging"
)

// DemoOptions demo 命令参数
type DemoOptions struct {
	*RootOptions
	Operator string
	Metrics  bool
}

// NewDemoCommand 创建 demo 命令
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a sequence of audited units of work",
		Long: `Creates a customer and an order with two lines, then changes a quantity,
drops a line and ships the order. Each step is one unit of work anchored
by its own service history; the recorded operations are printed afterwards.

Examples:
  auditdemo demo --dsn ./audit.db
  auditdemo demo --operator alice --format json
  auditdemo demo --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator recorded on the changes (defaults to audit.principal)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print audit metrics after the run")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *DemoOptions) error {
	rt, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if opts.Operator != "" {
		ctx = audit.WithOperator(ctx, opts.Operator)
	}

	anchors, err := runScenario(ctx, rt)
	if err != nil {
		return err
	}

	ops := repository.NewOperationsRepository(rt.ReadSession())
	views := make([]ServiceView, 0, len(anchors))
	for _, sh := range anchors {
		view, err := loadServiceView(ctx, ops, sh)
		if err != nil {
			return err
		}
		views = append(views, view)
	}
	if err := writeServices(cmd.OutOrStdout(), opts.Format, views); err != nil {
		return err
	}

	if opts.Metrics && rt.Registry != nil {
		families, err := rt.Registry.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
				return err
			}
		}
	}
	return nil
}

// runScenario 依次执行演示步骤，返回每一步的锚点
func runScenario(ctx context.Context, rt *Runtime) ([]*audit.ServiceHistory, error) {
	var anchors []*audit.ServiceHistory
	step := func(name string, mutate func(s *session.Session) error) error {
		s := rt.NewSession()
		sh := audit.NewServiceHistory(name)
		if err := s.Add(sh); err != nil {
			return err
		}
		if err := mutate(s); err != nil {
			return err
		}
		if _, err := s.SaveChanges(ctx); err != nil {
			return err
		}
		rt.Logger.Info(ctx, "步骤完成", logging.String("step", name), logging.Int64("service_history_id", sh.ID))
		anchors = append(anchors, sh)
		return nil
	}

	var (
		ada   = &customer{Name: "Ada Lovelace", Email: "ada@example.com"}
		order = &salesOrder{Number: "SO-1001", Status: "open"}
		book  = &orderLine{SKU: "BOOK-1", Qty: 1}
		pens  = &orderLine{SKU: "PEN-2", Qty: 3}
	)

	if err := step("open order", func(s *session.Session) error {
		if err := s.Add(ada); err != nil {
			return err
		}
		order.CustomerID = ada.ID
		if err := s.Add(order); err != nil {
			return err
		}
		book.OrderID = order.ID
		pens.OrderID = order.ID
		if err := s.Add(book); err != nil {
			return err
		}
		return s.Add(pens)
	}); err != nil {
		return nil, err
	}

	if err := step("adjust quantity", func(s *session.Session) error {
		line, err := session.FindAs[orderLine](ctx, s, book.ID)
		if err != nil {
			return err
		}
		line.Qty = 2
		return nil
	}); err != nil {
		return nil, err
	}

	if err := step("drop line", func(s *session.Session) error {
		line, err := session.FindAs[orderLine](ctx, s, pens.ID)
		if err != nil {
			return err
		}
		return s.Remove(line)
	}); err != nil {
		return nil, err
	}

	if err := step("ship order", func(s *session.Session) error {
		o, err := session.FindAs[salesOrder](ctx, s, order.ID)
		if err != nil {
			return err
		}
		o.Status = "shipped"
		return nil
	}); err != nil {
		return nil, err
	}

	return anchors, nil
}
