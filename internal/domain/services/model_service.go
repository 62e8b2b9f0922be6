package services

import (
	"context"
	"errors"
	"sync"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

var (
	ErrClassifierDisabled = errors.New("phishing classifier disabled")
	ErrRetrainInProgress  = errors.New("retrain already in progress")
)

// ModelService retrains and persists the phishing classifier on demand.
type ModelService struct {
	classifier   *PhishingClassifier // nil when disabled
	path         string
	trainingSize int
	publisher    EventPublisher
	logger       *logger.Logger

	mu       sync.Mutex
	training bool
}

func NewModelService(classifier *PhishingClassifier, path string, trainingSize int, log *logger.Logger) *ModelService {
	return &ModelService{
		classifier:   classifier,
		path:         path,
		trainingSize: trainingSize,
		logger:       log.WithComponent("model"),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ModelService) SetEventPublisher(p EventPublisher) { s.publisher = p }

// Info describes the loaded model.
func (s *ModelService) Info() (models.ModelInfo, error) {
	if s.classifier == nil {
		return models.ModelInfo{}, ErrClassifierDisabled
	}
	return s.classifier.ModelInfo(), nil
}

// Retrain trains on a fresh corpus of size samples (the configured size
// when size <= 0) and saves the model. Concurrent calls fail fast.
func (s *ModelService) Retrain(ctx context.Context, size int) (models.ModelInfo, error) {
	if s.classifier == nil {
		return models.ModelInfo{}, ErrClassifierDisabled
	}
	s.mu.Lock()
	if s.training {
		s.mu.Unlock()
		return models.ModelInfo{}, ErrRetrainInProgress
	}
	s.training = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.training = false
		s.mu.Unlock()
	}()

	if size <= 0 {
		size = s.trainingSize
	}
	if _, err := s.classifier.TrainGenerated(size); err != nil {
		return models.ModelInfo{}, err
	}
	if s.path != "" {
		if err := s.classifier.SaveModel(s.path); err != nil {
			return models.ModelInfo{}, err
		}
	}

	info := s.classifier.ModelInfo()
	s.logger.Info().
		Int("training_size", info.TrainingSize).
		Float64("holdout_accuracy", info.HoldoutAccuracy).
		Msg("classifier retrained")

	if s.publisher != nil {
		if err := s.publisher.PublishModelRetrained(ctx, info); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish model event")
		}
	}
	return info, nil
}
