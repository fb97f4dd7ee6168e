package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/savor-erp/savor-erp/internal/inventory"
	jobmetrics "github.com/savor-erp/savor-erp/internal/jobs"
)

const (
	// TaskLowStockScan checks stock balances against reorder thresholds.
	TaskLowStockScan = "inventory:lowstock"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// StockReader lists items at or below their reorder threshold.
type StockReader interface {
	LowStock(ctx context.Context) ([]inventory.LowStockRow, error)
}

// LowStockScanJob surfaces depleted items in the worker log so operators see
// them without opening the inventory screen.
type LowStockScanJob struct {
	Inventory StockReader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob constructs the job handler.
func NewLowStockScanJob(inv StockReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Inventory: inv, Logger: logger, Metrics: metrics}
}

// NewLowStockScanTask constructs an Asynq task for the low stock sweep.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	payload := LowStockScanPayload{ScheduledFor: at}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the low stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("low stock scan: dependencies not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	rows, err := j.Inventory.LowStock(ctx)
	if err != nil {
		j.log().Error("list low stock", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, row := range rows {
		j.log().Warn("stock below threshold",
			slog.String("sku", row.SKU),
			slog.String("name", row.Name),
			slog.Int64("warehouse_id", row.WarehouseID),
			slog.Float64("qty", row.Qty),
			slog.Float64("threshold", row.Threshold))
	}
	j.metrics().SetLowStockCount(len(rows))
	j.log().Info("low stock scan complete", slog.Int("flagged", len(rows)))
	return tracker.End(nil)
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LowStockScanJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}
