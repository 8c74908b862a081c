package dataprocessing

import (
	"fmt"
	"strings"

	"salespulse/internal/config"
	"salespulse/internal/statistics"
)

// ImputationStrategy selects how missing cells are filled
type ImputationStrategy int

const (
	ImputeMean ImputationStrategy = iota
	ImputeMedian
	ImputeMode
	ImputeConstant
	ImputeKNN
	ImputeForwardFill
	ImputeBackwardFill
)

// KNNNeighbors is the neighbourhood size of KNN imputation
const KNNNeighbors = 5

func (s ImputationStrategy) String() string {
	switch s {
	case ImputeMean:
		return "mean"
	case ImputeMedian:
		return "median"
	case ImputeMode:
		return "most_frequent"
	case ImputeConstant:
		return "constant"
	case ImputeKNN:
		return "knn"
	case ImputeForwardFill:
		return "ffill"
	case ImputeBackwardFill:
		return "bfill"
	default:
		return fmt.Sprintf("ImputationStrategy(%d)", int(s))
	}
}

// ParseImputationStrategy parses a strategy name
func ParseImputationStrategy(s string) (ImputationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean":
		return ImputeMean, nil
	case "median":
		return ImputeMedian, nil
	case "mode", "most_frequent":
		return ImputeMode, nil
	case "constant":
		return ImputeConstant, nil
	case "knn":
		return ImputeKNN, nil
	case "ffill", "forward_fill", "forward":
		return ImputeForwardFill, nil
	case "bfill", "backward_fill", "backward":
		return ImputeBackwardFill, nil
	default:
		return 0, fmt.Errorf("unknown imputation strategy %q", s)
	}
}

// ScalingMethod selects how numeric columns are normalized
type ScalingMethod int

const (
	ScaleStandard ScalingMethod = iota
	ScaleMinMax
	ScaleRobust
)

func (m ScalingMethod) String() string {
	switch m {
	case ScaleStandard:
		return "standard"
	case ScaleMinMax:
		return "minmax"
	case ScaleRobust:
		return "robust"
	default:
		return fmt.Sprintf("ScalingMethod(%d)", int(m))
	}
}

// ParseScalingMethod parses "standard", "minmax" or "robust"
func ParseScalingMethod(s string) (ScalingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "zscore":
		return ScaleStandard, nil
	case "minmax", "min_max":
		return ScaleMinMax, nil
	case "robust":
		return ScaleRobust, nil
	default:
		return 0, fmt.Errorf("unknown scaling method %q", s)
	}
}

// EncodingMethod selects how categorical columns are encoded
type EncodingMethod int

const (
	EncodeLabel EncodingMethod = iota
	EncodeOneHot
)

func (m EncodingMethod) String() string {
	switch m {
	case EncodeLabel:
		return "label"
	case EncodeOneHot:
		return "onehot"
	default:
		return fmt.Sprintf("EncodingMethod(%d)", int(m))
	}
}

// ParseEncodingMethod parses "label" or "onehot"
func ParseEncodingMethod(s string) (EncodingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "label":
		return EncodeLabel, nil
	case "onehot", "one_hot", "one-hot":
		return EncodeOneHot, nil
	default:
		return 0, fmt.Errorf("unknown encoding method %q", s)
	}
}

// ScalerParams is the fitted transformation of one column: (x - Center) / Scale
type ScalerParams struct {
	Method ScalingMethod `json:"method"`
	Center float64       `json:"center"`
	Scale  float64       `json:"scale"`
}

// Apply transforms a raw value
func (p ScalerParams) Apply(x float64) float64 {
	return (x - p.Center) / p.Scale
}

// Inverse maps a transformed value back to the raw scale
func (p ScalerParams) Inverse(x float64) float64 {
	return x*p.Scale + p.Center
}

// LabelEncoding maps category labels to integer codes
type LabelEncoding struct {
	Classes []string       `json:"classes"`
	Index   map[string]int `json:"index"`
}

// CleanOptions selects the steps of a cleaning pass. Steps run in the order
// strings, outliers, imputation, normalization, encoding. A nil column list
// means every eligible column.
type CleanOptions struct {
	CleanStrings  bool
	StringColumns []string

	RemoveOutliers   bool
	OutlierMethod    statistics.OutlierMethod
	OutlierThreshold float64
	OutlierColumns   []string

	ImputeMissing bool
	Imputation    ImputationStrategy
	FillValue     float64
	ImputeColumns []string

	Normalize        bool
	Scaling          ScalingMethod
	NormalizeColumns []string

	Encode        bool
	Encoding      EncodingMethod
	EncodeColumns []string
}

// DefaultCleanOptions cleans strings, removes IQR outliers and imputes medians
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		CleanStrings:   true,
		RemoveOutliers: true,
		OutlierMethod:  statistics.OutlierIQR,
		ImputeMissing:  true,
		Imputation:     ImputeMedian,
	}
}

// CleanOptionsFromConfig builds the cleaning pass configured for the analysis pipeline
func CleanOptionsFromConfig(cfg config.CleaningConfig) (CleanOptions, error) {
	opts := CleanOptions{
		CleanStrings:   cfg.CleanStrings,
		RemoveOutliers: cfg.RemoveOutliers,
		ImputeMissing:  cfg.ImputeMissing,
	}

	method, err := statistics.ParseOutlierMethod(cfg.OutlierMethod)
	if err != nil {
		return CleanOptions{}, err
	}
	opts.OutlierMethod = method
	if method == statistics.OutlierZScore {
		opts.OutlierThreshold = cfg.ZScoreThreshold
	} else {
		opts.OutlierThreshold = cfg.IQRThreshold
	}

	strategy, err := ParseImputationStrategy(cfg.ImputationStrategy)
	if err != nil {
		return CleanOptions{}, err
	}
	opts.Imputation = strategy
	return opts, nil
}

func (o CleanOptions) outlierThreshold() float64 {
	if o.OutlierThreshold > 0 {
		return o.OutlierThreshold
	}
	if o.OutlierMethod == statistics.OutlierZScore {
		return statistics.DefaultZScoreThreshold
	}
	return statistics.DefaultIQRThreshold
}
