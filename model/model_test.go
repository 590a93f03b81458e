package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-insect/storage"
)

// treeJSON is a single tree in XGBoost's JSON layout.
type treeJSON struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     []int     `json:"default_left"`
}

func leafTree(value float64) treeJSON {
	return treeJSON{
		LeftChildren:    []int{-1},
		RightChildren:   []int{-1},
		SplitIndices:    []int{0},
		SplitConditions: []float64{value},
		DefaultLeft:     []int{0},
	}
}

// splitTree sends feature < threshold to leaf lo, otherwise hi; missing
// values go left.
func splitTree(feature int, threshold, lo, hi float64) treeJSON {
	return treeJSON{
		LeftChildren:    []int{1, -1, -1},
		RightChildren:   []int{2, -1, -1},
		SplitIndices:    []int{feature, 0, 0},
		SplitConditions: []float64{threshold, lo, hi},
		DefaultLeft:     []int{1, 0, 0},
	}
}

func xgbJSON(t *testing.T, objective string, numClass, numFeature int, baseScore string, trees []treeJSON, info []int) []byte {
	t.Helper()
	doc := map[string]any{
		"learner": map[string]any{
			"attributes": map[string]string{},
			"gradient_booster": map[string]any{
				"name": "gbtree",
				"model": map[string]any{
					"trees":     trees,
					"tree_info": info,
				},
			},
			"learner_model_param": map[string]string{
				"base_score":  baseScore,
				"num_class":   itoa(numClass),
				"num_feature": itoa(numFeature),
			},
			"objective": map[string]any{"name": objective},
		},
		"version": []int{2, 0, 3},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func row(values ...float64) *mat.Dense {
	return mat.NewDense(1, len(values), values)
}

func TestRobustScalerTransform(t *testing.T) {
	s, err := ParseRobustScaler([]byte(`{"schema_version":"v","n_features_in":3,"center":[1,2,3],"scale":[2,4,0.5]}`))
	require.NoError(t, err)
	require.Equal(t, 3, s.Dimension())

	in := []float64{3, 2, 4}
	out, err := s.Transform(in)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0, 2}, out.RawRowView(0))
	require.Equal(t, []float64{3, 2, 4}, in)

	r, c := out.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 3, c)
}

func TestRobustScalerRejectsWrongWidth(t *testing.T) {
	s, err := NewRobustScaler("", []float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)

	out, err := s.Transform([]float64{1, 2, 3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	require.Nil(t, out)
}

func TestRobustScalerValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `[`},
		{"empty", `{}`},
		{"zero scale", `{"center":[0],"scale":[0]}`},
		{"length mismatch", `{"center":[0,1],"scale":[1]}`},
		{"declared width", `{"n_features_in":4,"center":[0],"scale":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRobustScaler([]byte(tt.json))
			require.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}

	s, err := ParseRobustScaler([]byte(`{"scale":[2,2]}`))
	require.NoError(t, err)
	out, err := s.Transform([]float64{4, -2})
	require.NoError(t, err)
	require.Equal(t, []float64{2, -1}, out.RawRowView(0))
}

func TestLabelEncoder(t *testing.T) {
	e, err := ParseLabelEncoder([]byte(`{"classes":["a","b","c"]}`))
	require.NoError(t, err)
	require.Equal(t, 3, e.Len())

	label, err := e.Decode(2)
	require.NoError(t, err)
	require.Equal(t, "c", label)

	id, err := e.Encode("b")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	_, err = e.Decode(3)
	require.ErrorIs(t, err, ErrUnknownClass)
	_, err = e.Decode(-1)
	require.ErrorIs(t, err, ErrUnknownClass)
	_, err = e.Encode("z")
	require.ErrorIs(t, err, ErrUnknownClass)

	_, err = ParseLabelEncoder([]byte(`{"classes":["a","a"]}`))
	require.ErrorIs(t, err, ErrInvalidArtifact)
	_, err = ParseLabelEncoder([]byte(`{"classes":[]}`))
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestCatalogDrift(t *testing.T) {
	e, err := NewLabelEncoder("", DefaultLabels)
	require.NoError(t, err)
	require.Empty(t, CatalogDrift(e))

	e, err = NewLabelEncoder("", []string{"Chorthippus biguttulus", "Cicada", "Ruspolia nitidula", "Other Insects", "Environmental Noise", "Birds"})
	require.NoError(t, err)
	require.Len(t, CatalogDrift(e), 2)
}

func TestXGBoostMultiClass(t *testing.T) {
	trees := []treeJSON{
		splitTree(0, 0.5, 1.0, -1.0), // class 0 likes small x0
		splitTree(1, 0.0, -1.0, 2.0), // class 1 likes positive x1
		leafTree(0.25),               // class 2 constant
	}
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveSoftprob, 3, 2, "5E-1", trees, []int{0, 1, 2}))
	require.NoError(t, err)
	require.Equal(t, 2, m.NumFeatures())
	require.Equal(t, 3, m.NumClasses())

	x := mat.NewDense(3, 2, []float64{
		0, -1, // margins 1.5, -0.5, 0.75
		1, 1, // -0.5, 2.5, 0.75
		1, -1, // -0.5, -0.5, 0.75
	})
	ids, err := m.Predict(x)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, ids)

	margins, err := m.Margins(x)
	require.NoError(t, err)
	require.InDelta(t, 1.5, margins.At(0, 0), 1e-12)
	require.InDelta(t, 2.5, margins.At(1, 1), 1e-12)

	proba, err := m.PredictProba(x)
	require.NoError(t, err)
	for r := range 3 {
		sum := 0.0
		for c := range 3 {
			sum += proba.At(r, c)
		}
		require.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestXGBoostTiesGoToLowestClass(t *testing.T) {
	trees := []treeJSON{leafTree(0.1), leafTree(0.7), leafTree(0.7), leafTree(0.7)}
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveSoftmax, 4, 1, "0.5", trees, []int{0, 1, 2, 3}))
	require.NoError(t, err)

	ids, err := m.Predict(row(0))
	require.NoError(t, err)
	require.Equal(t, []int{1}, ids)
}

func TestXGBoostMissingValueFollowsDefault(t *testing.T) {
	trees := []treeJSON{splitTree(0, 0.5, 1, -1), leafTree(0)}
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", trees, []int{0, 1}))
	require.NoError(t, err)

	ids, err := m.Predict(row(math.NaN()))
	require.NoError(t, err)
	require.Equal(t, []int{0}, ids)
}

func TestXGBoostBinaryLogistic(t *testing.T) {
	trees := []treeJSON{splitTree(0, 0, -2, 2)}
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveBinaryLogistic, 0, 1, "5E-1", trees, []int{0}))
	require.NoError(t, err)
	require.Equal(t, 2, m.NumClasses())

	ids, err := m.Predict(mat.NewDense(2, 1, []float64{-1, 1}))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, ids)

	proba, err := m.PredictProba(row(1))
	require.NoError(t, err)
	require.InDelta(t, 1/(1+math.Exp(-2)), proba.At(0, 1), 1e-12)
}

func TestXGBoostComparesInSinglePrecision(t *testing.T) {
	// float32(0.1) is slightly above 0.1
	trees := []treeJSON{splitTree(0, 0.1, -2, 2)}
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveBinaryLogistic, 0, 1, "0.5", trees, []int{0}))
	require.NoError(t, err)

	ids, err := m.Predict(mat.NewDense(4, 1, []float64{0.0999, 0.09999999999, 0.1, 0.10001}))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 1, 1}, ids)
}

func TestXGBoostVectorBaseScoreAndBoolDefaults(t *testing.T) {
	data := []byte(`{"learner":{
		"gradient_booster":{"name":"gbtree","model":{"tree_info":[0,1],"trees":[
			{"left_children":[-1],"right_children":[-1],"split_indices":[0],"split_conditions":[0],"default_left":[false]},
			{"left_children":[-1],"right_children":[-1],"split_indices":[0],"split_conditions":[0],"default_left":[true]}]}},
		"learner_model_param":{"base_score":"[1E-1,9E-1]","num_class":"2","num_feature":"1"},
		"objective":{"name":"multi:softprob"}}}`)
	m, err := ParseXGBoost(data)
	require.NoError(t, err)

	ids, err := m.Predict(row(0))
	require.NoError(t, err)
	require.Equal(t, []int{1}, ids)
}

func TestXGBoostRejects(t *testing.T) {
	ok := []treeJSON{leafTree(0), leafTree(0)}
	badChild := treeJSON{
		LeftChildren:    []int{0, -1},
		RightChildren:   []int{1, -1},
		SplitIndices:    []int{0, 0},
		SplitConditions: []float64{0, 0},
		DefaultLeft:     []int{0, 0},
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"objective", xgbJSON(t, "reg:squarederror", 0, 1, "0.5", ok[:1], []int{0})},
		{"tree info", xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", ok, []int{0})},
		{"class range", xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", ok, []int{0, 2})},
		{"feature range", xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", []treeJSON{splitTree(3, 0, 0, 0), leafTree(0)}, []int{0, 1})},
		{"cycle", xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", []treeJSON{badChild, leafTree(0)}, []int{0, 1})},
		{"no trees", xgbJSON(t, ObjectiveSoftprob, 2, 1, "0.5", nil, nil)},
		{"base score", xgbJSON(t, ObjectiveSoftprob, 2, 1, "abc", ok, []int{0, 1})},
		{"not json", []byte("{")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXGBoost(tt.data)
			require.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestXGBoostRejectsWrongWidth(t *testing.T) {
	m, err := ParseXGBoost(xgbJSON(t, ObjectiveSoftprob, 2, 2, "0.5", []treeJSON{leafTree(0), leafTree(0)}, []int{0, 1}))
	require.NoError(t, err)
	_, err = m.Predict(row(1, 2, 3))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func writeArtifacts(t *testing.T, dim int, classes []string, scalerSchema string) string {
	t.Helper()
	dir := t.TempDir()

	center := make([]float64, dim)
	scale := make([]float64, dim)
	for i := range scale {
		scale[i] = 1
	}
	scaler, err := json.Marshal(map[string]any{
		"schema_version": scalerSchema, "n_features_in": dim, "center": center, "scale": scale,
	})
	require.NoError(t, err)
	encoder, err := json.Marshal(map[string]any{"schema_version": "insect-acoustic/v1", "classes": classes})
	require.NoError(t, err)

	trees := make([]treeJSON, len(classes))
	info := make([]int, len(classes))
	for i := range trees {
		trees[i] = leafTree(float64(i))
		info[i] = i
	}
	classifier := xgbJSON(t, ObjectiveSoftprob, len(classes), dim, "0.5", trees, info)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaler.json"), scaler, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "encoder.json"), encoder, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classifier.json"), classifier, 0o644))
	return dir
}

func TestLoadBundle(t *testing.T) {
	dir := writeArtifacts(t, 265, DefaultLabels, "insect-acoustic/v1")
	store, err := storage.NewLocal(dir)
	require.NoError(t, err)

	b, err := LoadBundle(context.Background(), store, DefaultArtifactPaths())
	require.NoError(t, err)
	require.Equal(t, "insect-acoustic/v1", b.SchemaVersion)
	require.Len(t, b.Fingerprint, 64)
	require.Equal(t, filepath.Join(dir, "scaler.json"), b.Sources.Scaler)
	require.Equal(t, 265, b.Scaler.Dimension())
	require.Equal(t, 5, b.Classifier.NumClasses())
}

func TestLoadBundleFailsFast(t *testing.T) {
	ctx := context.Background()

	t.Run("dimension", func(t *testing.T) {
		store, err := storage.NewLocal(writeArtifacts(t, 264, DefaultLabels, ""))
		require.NoError(t, err)
		_, err = LoadBundle(ctx, store, DefaultArtifactPaths())
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("schema", func(t *testing.T) {
		store, err := storage.NewLocal(writeArtifacts(t, 265, DefaultLabels, "insect-acoustic/v0"))
		require.NoError(t, err)
		_, err = LoadBundle(ctx, store, DefaultArtifactPaths())
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("missing artifact", func(t *testing.T) {
		dir := writeArtifacts(t, 265, DefaultLabels, "")
		require.NoError(t, os.Remove(filepath.Join(dir, "classifier.json")))
		store, err := storage.NewLocal(dir)
		require.NoError(t, err)
		_, err = LoadBundle(ctx, store, DefaultArtifactPaths())
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("custom expectation", func(t *testing.T) {
		store, err := storage.NewLocal(writeArtifacts(t, 10, []string{"a", "b"}, "custom"))
		require.NoError(t, err)
		_, err = LoadBundle(ctx, store, DefaultArtifactPaths(), ExpectSchema("custom", 10))
		require.ErrorIs(t, err, ErrSchemaMismatch, "encoder still records insect-acoustic/v1")
	})
}

func TestNewBundleEncoderSize(t *testing.T) {
	scaler, err := NewRobustScaler("", make([]float64, 3), nil)
	require.NoError(t, err)
	encoder, err := NewLabelEncoder("", []string{"a", "b", "c"})
	require.NoError(t, err)
	classifier, err := ParseXGBoost(xgbJSON(t, ObjectiveSoftprob, 2, 3, "0.5", []treeJSON{leafTree(0), leafTree(0)}, []int{0, 1}))
	require.NoError(t, err)

	_, err = NewBundle(scaler, encoder, classifier, ExpectSchema("x", 3))
	require.ErrorIs(t, err, ErrInvalidArtifact)
}
