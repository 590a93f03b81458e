package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Objectives understood by the scorer.
const (
	ObjectiveSoftprob       = "multi:softprob"
	ObjectiveSoftmax        = "multi:softmax"
	ObjectiveBinaryLogistic = "binary:logistic"
	ObjectiveBinaryLogitRaw = "binary:logitraw"
)

// XGBoost scores rows with a gradient boosted tree ensemble saved in
// XGBoost's JSON model format. It is immutable after parsing.
type XGBoost struct {
	objective     string
	numClass      int // margins per row: 1 for binary objectives
	numFeature    int
	baseMargin    []float64
	trees         []tree
	treeClass     []int
	schemaVersion string
}

type tree struct {
	left        []int
	right       []int
	split       []int
	condition   []float32 // split threshold, or the leaf value
	defaultLeft []bool
}

// xgbFile mirrors the parts of the XGBoost JSON schema the scorer needs.
type xgbFile struct {
	Learner struct {
		Attributes      map[string]string `json:"attributes"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTree `json:"trees"`
				TreeInfo []int     `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flagList  `json:"default_left"`
	SplitType       []int     `json:"split_type"`
}

// flagList accepts default_left written as booleans or as 0/1 integers,
// both of which appear across XGBoost releases.
type flagList []bool

func (f *flagList) UnmarshalJSON(data []byte) error {
	var asBool []bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*f = asBool
		return nil
	}
	var asInt []int
	if err := json.Unmarshal(data, &asInt); err != nil {
		return fmt.Errorf("default_left: %w", err)
	}
	out := make([]bool, len(asInt))
	for i, v := range asInt {
		out[i] = v != 0
	}
	*f = out
	return nil
}

// ParseXGBoost decodes and validates an XGBoost JSON model.
func ParseXGBoost(data []byte) (*XGBoost, error) {
	var f xgbFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: classifier: %v", ErrInvalidArtifact, err)
	}
	l := f.Learner

	if name := l.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("%w: unsupported booster %q", ErrInvalidArtifact, name)
	}

	m := &XGBoost{
		objective:     l.Objective.Name,
		schemaVersion: l.Attributes["schema_version"],
	}

	var err error
	if m.numFeature, err = parseIntParam("num_feature", l.LearnerModelParam.NumFeature); err != nil {
		return nil, err
	}
	if m.numFeature <= 0 {
		return nil, fmt.Errorf("%w: num_feature must be positive", ErrInvalidArtifact)
	}
	numClass, err := parseIntParam("num_class", l.LearnerModelParam.NumClass)
	if err != nil {
		return nil, err
	}

	switch m.objective {
	case ObjectiveSoftprob, ObjectiveSoftmax:
		if numClass < 2 {
			return nil, fmt.Errorf("%w: %s needs num_class >= 2, got %d", ErrInvalidArtifact, m.objective, numClass)
		}
		m.numClass = numClass
	case ObjectiveBinaryLogistic, ObjectiveBinaryLogitRaw:
		m.numClass = 1
	default:
		return nil, fmt.Errorf("%w: unsupported objective %q", ErrInvalidArtifact, m.objective)
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore, m.numClass)
	if err != nil {
		return nil, err
	}
	if m.objective == ObjectiveBinaryLogistic {
		for i, p := range base {
			if p <= 0 || p >= 1 {
				return nil, fmt.Errorf("%w: logistic base_score %v outside (0, 1)", ErrInvalidArtifact, p)
			}
			base[i] = math.Log(p / (1 - p))
		}
	}
	m.baseMargin = base

	trees := l.GradientBooster.Model.Trees
	info := l.GradientBooster.Model.TreeInfo
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: model has no trees", ErrInvalidArtifact)
	}
	if len(info) != len(trees) {
		return nil, fmt.Errorf("%w: %d trees but %d tree_info entries", ErrInvalidArtifact, len(trees), len(info))
	}

	m.trees = make([]tree, len(trees))
	m.treeClass = make([]int, len(trees))
	for i, raw := range trees {
		t, err := buildTree(raw, m.numFeature)
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrInvalidArtifact, i, err)
		}
		if info[i] < 0 || info[i] >= m.numClass {
			return nil, fmt.Errorf("%w: tree %d assigned to class %d of %d", ErrInvalidArtifact, i, info[i], m.numClass)
		}
		m.trees[i] = t
		m.treeClass[i] = info[i]
	}
	return m, nil
}

func parseIntParam(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalidArtifact, name, value, err)
	}
	return n, nil
}

// parseBaseScore reads "5E-1" or, from newer releases, "[5E-1,5E-1,...]".
func parseBaseScore(value string, n int) ([]float64, error) {
	value = strings.TrimSpace(value)
	out := make([]float64, n)
	if value == "" {
		for i := range out {
			out[i] = 0.5
		}
		return out, nil
	}

	parts := []string{value}
	if strings.HasPrefix(value, "[") {
		parts = strings.Split(strings.Trim(value, "[]"), ",")
	}
	if len(parts) != 1 && len(parts) != n {
		return nil, fmt.Errorf("%w: base_score has %d values for %d outputs", ErrInvalidArtifact, len(parts), n)
	}
	for i := range out {
		p := parts[0]
		if len(parts) == n {
			p = parts[i]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: base_score %q: %v", ErrInvalidArtifact, value, err)
		}
		out[i] = v
	}
	return out, nil
}

func buildTree(raw xgbTree, numFeature int) (tree, error) {
	n := len(raw.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("no nodes")
	}
	if len(raw.RightChildren) != n || len(raw.SplitIndices) != n || len(raw.SplitConditions) != n {
		return tree{}, fmt.Errorf("node arrays disagree in length")
	}
	defaultLeft := []bool(raw.DefaultLeft)
	if defaultLeft == nil {
		defaultLeft = make([]bool, n)
	}
	if len(defaultLeft) != n {
		return tree{}, fmt.Errorf("default_left has %d entries for %d nodes", len(defaultLeft), n)
	}
	for _, st := range raw.SplitType {
		if st != 0 {
			return tree{}, fmt.Errorf("categorical splits are not supported")
		}
	}

	for i := range n {
		l, r := raw.LeftChildren[i], raw.RightChildren[i]
		if l == -1 {
			continue
		}
		// Children always follow their parent, which also rules out cycles.
		if l <= i || l >= n || r <= i || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if s := raw.SplitIndices[i]; s < 0 || s >= numFeature {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, s, numFeature)
		}
	}

	condition := make([]float32, n)
	for i, c := range raw.SplitConditions {
		condition[i] = float32(c)
	}

	return tree{
		left:        raw.LeftChildren,
		right:       raw.RightChildren,
		split:       raw.SplitIndices,
		condition:   condition,
		defaultLeft: defaultLeft,
	}, nil
}

// leaf walks the tree for row and returns the leaf value. Missing (NaN)
// values follow the default direction. Thresholds and features compare in
// single precision, as XGBoost stores and evaluates them.
func (t *tree) leaf(row []float64) float64 {
	i := 0
	for t.left[i] != -1 {
		v := row[t.split[i]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[i] {
				i = t.left[i]
			} else {
				i = t.right[i]
			}
		case float32(v) < t.condition[i]:
			i = t.left[i]
		default:
			i = t.right[i]
		}
	}
	return float64(t.condition[i])
}

// NumFeatures returns the input width the model was trained on.
func (m *XGBoost) NumFeatures() int { return m.numFeature }

// NumClasses returns the number of class ids Predict can return.
func (m *XGBoost) NumClasses() int {
	if m.numClass == 1 {
		return 2
	}
	return m.numClass
}

// Objective returns the training objective name.
func (m *XGBoost) Objective() string { return m.objective }

// NumTrees returns the ensemble size.
func (m *XGBoost) NumTrees() int { return len(m.trees) }

// SchemaVersion returns the feature schema recorded in the model attributes.
func (m *XGBoost) SchemaVersion() string { return m.schemaVersion }

// Margins returns the raw per-output scores of every row: base margin plus
// the leaf values of the trees assigned to each output.
func (m *XGBoost) Margins(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != m.numFeature {
		return nil, fmt.Errorf("%w: got %d features, classifier expects %d", ErrDimensionMismatch, cols, m.numFeature)
	}

	out := mat.NewDense(rows, m.numClass, nil)
	row := make([]float64, cols)
	for r := range rows {
		mat.Row(row, r, x)
		margins := out.RawRowView(r)
		copy(margins, m.baseMargin)
		for i := range m.trees {
			margins[m.treeClass[i]] += m.trees[i].leaf(row)
		}
	}
	return out, nil
}

// Predict returns the class id of every row. Multi-class models take the
// highest margin with ties going to the lowest id; binary models return 1
// only when the margin is strictly positive.
func (m *XGBoost) Predict(x mat.Matrix) ([]int, error) {
	margins, err := m.Margins(x)
	if err != nil {
		return nil, err
	}
	rows, _ := margins.Dims()
	ids := make([]int, rows)
	for r := range rows {
		ids[r] = m.decide(margins.RawRowView(r))
	}
	return ids, nil
}

func (m *XGBoost) decide(margins []float64) int {
	if m.numClass == 1 {
		if margins[0] > 0 {
			return 1
		}
		return 0
	}
	best := 0
	for k := 1; k < len(margins); k++ {
		if margins[k] > margins[best] {
			best = k
		}
	}
	return best
}

// PredictProba returns softmax (multi-class) or sigmoid (binary)
// probabilities, one row per input row and one column per class.
func (m *XGBoost) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	margins, err := m.Margins(x)
	if err != nil {
		return nil, err
	}
	rows, _ := margins.Dims()
	out := mat.NewDense(rows, m.NumClasses(), nil)
	for r := range rows {
		mr := margins.RawRowView(r)
		pr := out.RawRowView(r)
		if m.numClass == 1 {
			p := 1 / (1 + math.Exp(-mr[0]))
			pr[0], pr[1] = 1-p, p
			continue
		}
		softmax(mr, pr)
	}
	return out, nil
}

func softmax(margins, out []float64) {
	peak := margins[0]
	for _, v := range margins[1:] {
		peak = math.Max(peak, v)
	}
	sum := 0.0
	for i, v := range margins {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

var _ Classifier = (*XGBoost)(nil)
