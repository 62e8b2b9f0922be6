package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"honeyshield/pkg/logger"
)

func TestModelServiceRetrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	c := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	pub := &recordingPublisher{}

	svc := NewModelService(c, path, 200, logger.Nop())
	svc.SetEventPublisher(pub)

	info, err := svc.Retrain(context.Background(), 0)
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if !info.Trained || info.TrainingSize == 0 {
		t.Errorf("info = %+v", info)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("model not saved: %v", err)
	}
	if len(pub.models) != 1 {
		t.Errorf("published %d model events, want 1", len(pub.models))
	}

	got, err := svc.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got.NumTrees != smallForestConfig().NumTrees {
		t.Errorf("num trees = %d", got.NumTrees)
	}
}

func TestModelServiceDisabled(t *testing.T) {
	svc := NewModelService(nil, "", 0, logger.Nop())
	if _, err := svc.Info(); !errors.Is(err, ErrClassifierDisabled) {
		t.Errorf("Info error = %v", err)
	}
	if _, err := svc.Retrain(context.Background(), 10); !errors.Is(err, ErrClassifierDisabled) {
		t.Errorf("Retrain error = %v", err)
	}
}
