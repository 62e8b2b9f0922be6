package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml; supplies forest parameters and defaults")
	size := flag.Int("size", 0, "number of generated training samples (default: ml.training_size)")
	out := flag.String("out", "", "model output path (default: ml.model_path)")
	corpus := flag.String("corpus", "", "also write the generated corpus as JSON to this path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logger.Level,
		Format: "console",
	})

	if *size <= 0 {
		*size = cfg.ML.TrainingSize
	}
	if *out == "" {
		*out = cfg.ML.ModelPath
	}

	samples := services.NewCorpusGenerator(cfg.ML.Seed).Generate(*size)
	if *corpus != "" {
		if err := writeCorpus(*corpus, samples); err != nil {
			log.Fatal().Err(err).Str("path", *corpus).Msg("failed to write corpus")
		}
		log.Info().Str("path", *corpus).Int("samples", len(samples)).Msg("corpus written")
	}

	classifier := services.NewPhishingClassifier(services.RandomForestConfig{
		NumTrees:       cfg.ML.NumTrees,
		MaxDepth:       cfg.ML.MaxDepth,
		MinSamplesLeaf: cfg.ML.MinSamplesLeaf,
		Seed:           cfg.ML.Seed,
	}, log)

	acc, err := classifier.Train(samples)
	if err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
	if err := classifier.SaveModel(*out); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("failed to save model")
	}

	info := classifier.ModelInfo()
	log.Info().
		Str("model", *out).
		Int("samples", len(samples)).
		Int("trees", info.NumTrees).
		Msg("model saved")
	fmt.Printf("holdout accuracy: %.4f\n", acc)
}

func writeCorpus(path string, samples []models.TrainingSample) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
