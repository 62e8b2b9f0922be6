package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"honeyshield/pkg/logger"
)

// ErrModelNotTrained is returned by predictions before Train or Load.
var ErrModelNotTrained = errors.New("model not trained")

// RandomForestConfig holds configuration
type RandomForestConfig struct {
	NumTrees       int   // default 50
	MaxDepth       int   // default 12
	MinSamplesLeaf int   // default 2
	MaxFeatures    int   // default sqrt(n_features)
	Seed           int64 // fixed seeds give reproducible forests
}

// DefaultRandomForestConfig returns default configuration
func DefaultRandomForestConfig() RandomForestConfig {
	return RandomForestConfig{
		NumTrees:       50,
		MaxDepth:       12,
		MinSamplesLeaf: 2,
		Seed:           42,
	}
}

// forestNode is a decision tree node. Leaves carry the share of positive
// (phishing) samples that reached them.
type forestNode struct {
	Feature   int         `json:"f"`
	Threshold float64     `json:"t"`
	Left      *forestNode `json:"l,omitempty"`
	Right     *forestNode `json:"r,omitempty"`
	Leaf      bool        `json:"leaf,omitempty"`
	Prob      float64     `json:"p"`
}

// RandomForest is a binary random forest classifier (bagging, gini splits,
// random feature subsets per split).
type RandomForest struct {
	cfg    RandomForestConfig
	logger *logger.Logger

	mu           sync.RWMutex
	rng          *rand.Rand
	trees        []*forestNode
	featureNames []string
	importance   []float64
	trained      bool
	trainedAt    time.Time
	trainingSize int
	accuracy     float64
}

// NewRandomForest creates a new Random Forest classifier
func NewRandomForest(cfg RandomForestConfig, featureNames []string, log *logger.Logger) *RandomForest {
	def := DefaultRandomForestConfig()
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = def.NumTrees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = int(math.Sqrt(float64(len(featureNames))))
		if cfg.MaxFeatures < 1 {
			cfg.MaxFeatures = 1
		}
	}
	return &RandomForest{
		cfg:          cfg,
		logger:       log.WithComponent("random-forest"),
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		featureNames: append([]string(nil), featureNames...),
	}
}

// Train fits the forest. labels are 0 or 1.
func (rf *RandomForest) Train(data [][]float64, labels []int) error {
	if len(data) == 0 || len(data) != len(labels) {
		return fmt.Errorf("train: %d samples, %d labels", len(data), len(labels))
	}
	dims := len(rf.featureNames)
	for i, row := range data {
		if len(row) != dims {
			return fmt.Errorf("train: sample %d has %d features, want %d", i, len(row), dims)
		}
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()

	start := time.Now()
	rf.importance = make([]float64, dims)
	rf.trees = make([]*forestNode, rf.cfg.NumTrees)
	for i := range rf.trees {
		idx := rf.bootstrap(len(data))
		rf.trees[i] = rf.buildNode(data, labels, idx, 0)
	}

	total := 0.0
	for _, v := range rf.importance {
		total += v
	}
	if total > 0 {
		for i := range rf.importance {
			rf.importance[i] /= total
		}
	}

	rf.trained = true
	rf.trainedAt = time.Now()
	rf.trainingSize = len(data)
	rf.accuracy = 0

	rf.logger.Info().
		Int("trees", rf.cfg.NumTrees).
		Int("training_size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("random forest trained")
	return nil
}

func (rf *RandomForest) bootstrap(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rf.rng.Intn(n)
	}
	return idx
}

func (rf *RandomForest) buildNode(data [][]float64, labels []int, idx []int, depth int) *forestNode {
	pos := 0
	for _, i := range idx {
		pos += labels[i]
	}
	n := len(idx)

	if depth >= rf.cfg.MaxDepth || n <= rf.cfg.MinSamplesLeaf || pos == 0 || pos == n {
		return leafNode(pos, n)
	}

	feature, threshold, gain := rf.findBestSplit(data, labels, idx, pos)
	if feature < 0 || gain <= 0 {
		return leafNode(pos, n)
	}
	rf.importance[feature] += gain * float64(n)

	var left, right []int
	for _, i := range idx {
		if data[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leafNode(pos, n)
	}

	return &forestNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      rf.buildNode(data, labels, left, depth+1),
		Right:     rf.buildNode(data, labels, right, depth+1),
	}
}

func leafNode(pos, n int) *forestNode {
	p := 0.0
	if n > 0 {
		p = float64(pos) / float64(n)
	}
	return &forestNode{Leaf: true, Prob: p}
}

// findBestSplit sorts the samples once per candidate feature and sweeps the
// class counts, so each feature costs O(n log n).
func (rf *RandomForest) findBestSplit(data [][]float64, labels []int, idx []int, pos int) (int, float64, float64) {
	n := len(idx)
	parent := gini(pos, n)

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, n)

	for _, feature := range rf.selectFeatures(len(rf.featureNames)) {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return data[order[a]][feature] < data[order[b]][feature] })

		leftPos, leftN := 0, 0
		for k := 0; k < n-1; k++ {
			leftPos += labels[order[k]]
			leftN++
			cur, next := data[order[k]][feature], data[order[k+1]][feature]
			if cur == next {
				continue
			}
			rightN := n - leftN
			if leftN < rf.cfg.MinSamplesLeaf || rightN < rf.cfg.MinSamplesLeaf {
				continue
			}
			weighted := (float64(leftN)*gini(leftPos, leftN) + float64(rightN)*gini(pos-leftPos, rightN)) / float64(n)
			if gain := parent - weighted; gain > bestGain {
				bestFeature, bestThreshold, bestGain = feature, (cur+next)/2, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

func (rf *RandomForest) selectFeatures(dims int) []int {
	all := make([]int, dims)
	for i := range all {
		all[i] = i
	}
	if rf.cfg.MaxFeatures >= dims {
		return all
	}
	for i := 0; i < rf.cfg.MaxFeatures; i++ {
		j := i + rf.rng.Intn(dims-i)
		all[i], all[j] = all[j], all[i]
	}
	return all[:rf.cfg.MaxFeatures]
}

// PredictProba returns the mean leaf probability of the positive class.
func (rf *RandomForest) PredictProba(point []float64) (float64, error) {
	rf.mu.RLock()
	defer rf.mu.RUnlock()

	if !rf.trained || len(rf.trees) == 0 {
		return 0, ErrModelNotTrained
	}
	sum := 0.0
	for _, tree := range rf.trees {
		sum += walk(tree, point)
	}
	return sum / float64(len(rf.trees)), nil
}

func walk(node *forestNode, point []float64) float64 {
	for node != nil && !node.Leaf {
		if node.Feature < len(point) && point[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0
	}
	return node.Prob
}

// Accuracy is the share of samples classified correctly at p >= 0.5.
func (rf *RandomForest) Accuracy(data [][]float64, labels []int) (float64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	correct := 0
	for i, row := range data {
		p, err := rf.PredictProba(row)
		if err != nil {
			return 0, err
		}
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		if pred == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(data)), nil
}

// FeatureImportance returns normalized gini importance by feature name.
func (rf *RandomForest) FeatureImportance() map[string]float64 {
	rf.mu.RLock()
	defer rf.mu.RUnlock()

	out := make(map[string]float64, len(rf.importance))
	for i, v := range rf.importance {
		if i < len(rf.featureNames) && v > 0 {
			out[rf.featureNames[i]] = v
		}
	}
	return out
}

// IsTrained returns whether the model has been trained
func (rf *RandomForest) IsTrained() bool {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.trained
}

type forestFile struct {
	Version      int           `json:"version"`
	Features     []string      `json:"features"`
	Config       forestConfig  `json:"config"`
	Importance   []float64     `json:"importance"`
	TrainedAt    time.Time     `json:"trained_at"`
	TrainingSize int           `json:"training_size"`
	Accuracy     float64       `json:"holdout_accuracy"`
	Trees        []*forestNode `json:"trees"`
}

type forestConfig struct {
	NumTrees       int `json:"num_trees"`
	MaxDepth       int `json:"max_depth"`
	MinSamplesLeaf int `json:"min_samples_leaf"`
	MaxFeatures    int `json:"max_features"`
}

// Save writes the forest as JSON.
func (rf *RandomForest) Save(w io.Writer) error {
	rf.mu.RLock()
	defer rf.mu.RUnlock()

	if !rf.trained {
		return ErrModelNotTrained
	}
	return json.NewEncoder(w).Encode(forestFile{
		Version:  1,
		Features: rf.featureNames,
		Config: forestConfig{
			NumTrees:       rf.cfg.NumTrees,
			MaxDepth:       rf.cfg.MaxDepth,
			MinSamplesLeaf: rf.cfg.MinSamplesLeaf,
			MaxFeatures:    rf.cfg.MaxFeatures,
		},
		Importance:   rf.importance,
		TrainedAt:    rf.trainedAt,
		TrainingSize: rf.trainingSize,
		Accuracy:     rf.accuracy,
		Trees:        rf.trees,
	})
}

// Load replaces the forest with one read from r. The feature list must match.
func (rf *RandomForest) Load(r io.Reader) error {
	var f forestFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if len(f.Trees) == 0 {
		return errors.New("model has no trees")
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()

	if len(f.Features) != len(rf.featureNames) {
		return fmt.Errorf("model has %d features, want %d", len(f.Features), len(rf.featureNames))
	}
	for i, name := range f.Features {
		if rf.featureNames[i] != name {
			return fmt.Errorf("model feature %d is %q, want %q", i, name, rf.featureNames[i])
		}
	}

	rf.trees = f.Trees
	rf.importance = f.Importance
	rf.cfg.NumTrees = f.Config.NumTrees
	rf.cfg.MaxDepth = f.Config.MaxDepth
	rf.cfg.MinSamplesLeaf = f.Config.MinSamplesLeaf
	rf.cfg.MaxFeatures = f.Config.MaxFeatures
	rf.trainedAt = f.TrainedAt
	rf.trainingSize = f.TrainingSize
	rf.accuracy = f.Accuracy
	rf.trained = true
	return nil
}

// Config returns the effective configuration.
func (rf *RandomForest) Config() RandomForestConfig {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.cfg
}

// TrainingMeta reports when and on how many samples the forest was trained.
func (rf *RandomForest) TrainingMeta() (time.Time, int) {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.trainedAt, rf.trainingSize
}

// SetHoldoutAccuracy records an accuracy measured outside Train so it is
// saved with the model.
func (rf *RandomForest) SetHoldoutAccuracy(acc float64) {
	rf.mu.Lock()
	rf.accuracy = acc
	rf.mu.Unlock()
}

// HoldoutAccuracy returns the recorded holdout accuracy.
func (rf *RandomForest) HoldoutAccuracy() float64 {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.accuracy
}
