package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleRecost reprices every draft sale of a billing period.
	TaskSaleRecost = "sales:recost"
)

// SaleRecostPayload names the billing period to recost. An empty payload
// means the period current when the task runs.
type SaleRecostPayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// Period returns the payload as a costing period.
func (p SaleRecostPayload) Period() costing.Period {
	return costing.Period{Year: p.Year, Month: p.Month}
}

// Current reports whether the payload defers the period to run time.
func (p SaleRecostPayload) Current() bool {
	return p.Year == 0 && p.Month == 0
}

// PeriodAt returns the billing period containing t, in UTC.
func PeriodAt(t time.Time) costing.Period {
	t = t.UTC()
	return costing.Period{Year: t.Year(), Month: int(t.Month())}
}

// NewSaleRecostTask constructs an Asynq task for the given period.
func NewSaleRecostTask(period costing.Period) (*asynq.Task, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: %s", costing.ErrInvalidPeriod, period)
	}
	body, err := json.Marshal(SaleRecostPayload{Year: period.Year, Month: period.Month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleRecost, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewCurrentPeriodRecostTask builds a recost task for whichever period is
// current when a worker picks it up. Scheduled runs use it.
func NewCurrentPeriodRecostTask() *asynq.Task {
	return asynq.NewTask(TaskSaleRecost, []byte("{}"), asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

func decodeSaleRecostPayload(task *asynq.Task) (SaleRecostPayload, error) {
	var payload SaleRecostPayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
