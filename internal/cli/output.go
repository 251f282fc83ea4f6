package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"audittrail/audit"
	"audittrail/audit/repository"
)

// OperationView 审计行的输出形式，新旧值已解析
type OperationView struct {
	ID            int64          `json:"id"`
	EntityID      *int64         `json:"entity_id,omitempty"`
	EntityName    string         `json:"entity_name"`
	TableName     string         `json:"table_name"`
	OperationType string         `json:"operation_type"`
	OldValues     map[string]any `json:"old_values"`
	NewValues     map[string]any `json:"new_values"`
}

// ServiceView 服务历史及其审计行
type ServiceView struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	ChangedBy     string          `json:"changed_by"`
	ChangedOn     time.Time       `json:"changed_on"`
	CorrelationID string          `json:"correlation_id"`
	Operations    []OperationView `json:"operations"`
}

func loadServiceView(ctx context.Context, ops *repository.OperationsRepository, sh *audit.ServiceHistory) (ServiceView, error) {
	view := ServiceView{
		ID:            sh.ID,
		Name:          sh.Name,
		ChangedBy:     sh.ChangedBy,
		ChangedOn:     sh.ChangedOn,
		CorrelationID: sh.CorrelationID,
	}
	rows, err := ops.ListOperations(ctx, sh.ID)
	if err != nil {
		return view, err
	}
	for _, oh := range rows {
		oldValues, err := audit.DecodeValues(oh.OldValues)
		if err != nil {
			return view, err
		}
		newValues, err := audit.DecodeValues(oh.NewValues)
		if err != nil {
			return view, err
		}
		view.Operations = append(view.Operations, OperationView{
			ID:            oh.ID,
			EntityID:      oh.EntityID,
			EntityName:    oh.EntityName,
			TableName:     oh.TableName,
			OperationType: oh.OperationType,
			OldValues:     oldValues,
			NewValues:     newValues,
		})
	}
	return view, nil
}

func writeServices(w io.Writer, format string, views []ServiceView) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	for _, v := range views {
		fmt.Fprintf(w, "#%d %s by %s at %s [%s]\n",
			v.ID, v.Name, v.ChangedBy, v.ChangedOn.Format(time.RFC3339), v.CorrelationID)
		for _, op := range v.Operations {
			target := op.TableName
			if op.EntityID != nil {
				target = fmt.Sprintf("%s#%d", op.TableName, *op.EntityID)
			}
			fmt.Fprintf(w, "  %-9s %s %s -> %s\n",
				op.OperationType, target, compact(op.OldValues), compact(op.NewValues))
		}
	}
	return nil
}

func compact(values map[string]any) string {
	data, err := json.Marshal(values)
	if err != nil {
		return "?"
	}
	return string(data)
}
