package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Booster evaluates a gradient-boosted tree ensemble exported with XGBoost's
// JSON model format. Only the gbtree booster is supported.
type Booster struct {
	trees      []tree
	baseMargin float64
	numFeature int
	logistic   bool
}

type tree struct {
	left       []int
	right      []int
	feature    []int
	condition  []float64
	defaultLft []bool
}

// flexBool decodes default_left entries written as 0/1 or as booleans.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "1", "true":
		*b = true
	case "0", "false":
		*b = false
	default:
		return fmt.Errorf("invalid default_left value %s", data)
	}
	return nil
}

type boosterFile struct {
	Learner struct {
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []struct {
					LeftChildren    []int      `json:"left_children"`
					RightChildren   []int      `json:"right_children"`
					SplitIndices    []int      `json:"split_indices"`
					SplitConditions []float64  `json:"split_conditions"`
					DefaultLeft     []flexBool `json:"default_left"`
				} `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

// LoadBooster reads an XGBoost JSON model file.
func LoadBooster(path string) (*Booster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadModel, err)
	}
	b, err := ParseBooster(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBooster decodes an XGBoost JSON model.
func ParseBooster(raw []byte) (*Booster, error) {
	var f boosterFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadModel, err)
	}
	l := f.Learner
	if name := l.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("%w: unsupported booster %q", ErrInvalidModel, name)
	}

	b := &Booster{}
	switch l.Objective.Name {
	case "", "reg:squarederror", "reg:squaredlogerror", "reg:pseudohubererror", "reg:absoluteerror":
	case "reg:logistic", "binary:logistic":
		b.logistic = true
	default:
		return nil, fmt.Errorf("%w: unsupported objective %q", ErrInvalidModel, l.Objective.Name)
	}

	base, err := parseXGBFloat(l.LearnerModelParam.BaseScore, 0.5)
	if err != nil {
		return nil, fmt.Errorf("%w: base_score: %v", ErrInvalidModel, err)
	}
	if b.logistic {
		if base <= 0 || base >= 1 {
			return nil, fmt.Errorf("%w: logistic base_score %g outside (0, 1)", ErrInvalidModel, base)
		}
		// base_score is a probability; trees add to the margin
		base = math.Log(base / (1 - base))
	}
	b.baseMargin = base

	if nf := l.LearnerModelParam.NumFeature; nf != "" {
		n, err := strconv.Atoi(nf)
		if err != nil {
			return nil, fmt.Errorf("%w: num_feature: %v", ErrInvalidModel, err)
		}
		b.numFeature = n
	}

	for i, t := range l.GradientBooster.Model.Trees {
		n := len(t.LeftChildren)
		if n == 0 || len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n || len(t.DefaultLeft) != n {
			return nil, fmt.Errorf("%w: tree %d has inconsistent node arrays", ErrInvalidModel, i)
		}
		tr := tree{
			left:       t.LeftChildren,
			right:      t.RightChildren,
			feature:    t.SplitIndices,
			condition:  t.SplitConditions,
			defaultLft: make([]bool, n),
		}
		for j, d := range t.DefaultLeft {
			tr.defaultLft[j] = bool(d)
			if tr.left[j] >= n || tr.right[j] >= n {
				return nil, fmt.Errorf("%w: tree %d node %d points outside the tree", ErrInvalidModel, i, j)
			}
		}
		b.trees = append(b.trees, tr)
	}
	if len(b.trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	return b, nil
}

// parseXGBFloat handles "5E-1" as well as the bracketed "[5E-1]" form.
func parseXGBFloat(s string, def float64) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Trees returns the number of boosted trees.
func (b *Booster) Trees() int { return len(b.trees) }

// Predict sums the leaf values reached by x in every tree.
// NaN inputs follow each node's default direction.
func (b *Booster) Predict(x []float64) (float64, error) {
	if b.numFeature > 0 && len(x) != b.numFeature {
		return 0, fmt.Errorf("%w: booster expects %d features, got %d", ErrShape, b.numFeature, len(x))
	}
	margin := b.baseMargin
	for _, t := range b.trees {
		leaf, err := t.leaf(x)
		if err != nil {
			return 0, err
		}
		margin += leaf
	}
	if b.logistic {
		return 1 / (1 + math.Exp(-margin)), nil
	}
	return margin, nil
}

func (t tree) leaf(x []float64) (float64, error) {
	node := 0
	// a well-formed tree reaches a leaf in fewer steps than it has nodes
	for steps := 0; steps <= len(t.left); steps++ {
		if t.left[node] == -1 {
			return t.condition[node], nil
		}
		idx := t.feature[node]
		if idx < 0 || idx >= len(x) {
			return 0, fmt.Errorf("%w: split on feature %d of %d", ErrShape, idx, len(x))
		}
		// splits are trained on float32 features
		v := x[idx]
		switch {
		case math.IsNaN(v):
			if t.defaultLft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(v) < float32(t.condition[node]):
			node = t.left[node]
		default:
			node = t.right[node]
		}
		if node < 0 {
			return 0, fmt.Errorf("%w: dangling child", ErrInvalidModel)
		}
	}
	return 0, fmt.Errorf("%w: cycle in tree", ErrInvalidModel)
}
