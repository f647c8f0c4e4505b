package stats

import (
	"context"
	"time"

	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// DummyCollector is a no-op implementation of Collector used when
// statistics are disabled.
type DummyCollector struct{}

// NewDummyCollector creates a new no-op collector.
func NewDummyCollector() *DummyCollector {
	return &DummyCollector{}
}

func (d *DummyCollector) StartSession(_ context.Context, _, _, _ string, _ int, _ string) (int64, error) {
	return 0, nil
}

func (d *DummyCollector) EndSession(_ context.Context, _ int64, _, _ int64, _ time.Duration, _ string) error {
	return nil
}

func (d *DummyCollector) RecordError(_ context.Context, _ int64, _, _ string) error {
	return nil
}

func (d *DummyCollector) RecordInterfaceSnapshot(_ context.Context, _ netiface.Snapshot) error {
	return nil
}

func (d *DummyCollector) HealthCheck(_ context.Context) error {
	return nil
}

func (d *DummyCollector) Close() error {
	return nil
}
