package models

import "time"

// ModelInfo describes the loaded phishing classifier.
type ModelInfo struct {
	Name              string             `json:"name"`
	Trained           bool               `json:"trained"`
	TrainedAt         time.Time          `json:"trained_at,omitempty"`
	TrainingSize      int                `json:"training_size"`
	HoldoutAccuracy   float64            `json:"holdout_accuracy"`
	NumTrees          int                `json:"num_trees"`
	MaxDepth          int                `json:"max_depth"`
	FeatureNames      []string           `json:"feature_names"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// TrainingSample is one labeled text of the training corpus.
type TrainingSample struct {
	Text   string `json:"text"`
	Label  int    `json:"label"` // 1 phishing, 0 legitimate
	Type   string `json:"type"`
	Source string `json:"source"`
}
