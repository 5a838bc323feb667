package tree

import (
	"bytes"
	"encoding/gob"

	"github.com/YuminosukeSato/heartml/core/model"
)

// NodeSnapshot is the exported form of a tree node.
type NodeSnapshot struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64
	NSamples  int
	Impurity  float64
	Depth     int
}

// Snapshot is the gob form of a DecisionTreeClassifier.
type Snapshot struct {
	State              model.ModelState
	Criterion          string
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxFeatures        int
	RandomState        int64
	Classes            []int
	NFeatures          int
	Nodes              []NodeSnapshot
	FeatureImportances []float64
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	snap := Snapshot{
		State:              dt.state.GetState(),
		Criterion:          dt.criterion,
		MaxDepth:           dt.maxDepth,
		MinSamplesSplit:    dt.minSamplesSplit,
		MinSamplesLeaf:     dt.minSamplesLeaf,
		MaxFeatures:        dt.maxFeatures,
		RandomState:        dt.randomState,
		Classes:            dt.classes_,
		NFeatures:          dt.nFeatures_,
		FeatureImportances: dt.featureImportances_,
		Nodes:              make([]NodeSnapshot, len(dt.nodes)),
	}
	for i, nd := range dt.nodes {
		snap.Nodes[i] = NodeSnapshot(nd)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}

	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	dt.state.SetState(snap.State)
	dt.criterion = snap.Criterion
	dt.maxDepth = snap.MaxDepth
	dt.minSamplesSplit = snap.MinSamplesSplit
	dt.minSamplesLeaf = snap.MinSamplesLeaf
	dt.maxFeatures = snap.MaxFeatures
	dt.randomState = snap.RandomState
	dt.classes_ = snap.Classes
	dt.nClasses_ = len(snap.Classes)
	dt.nFeatures_ = snap.NFeatures
	dt.featureImportances_ = snap.FeatureImportances
	dt.nodes = make([]node, len(snap.Nodes))
	for i, nd := range snap.Nodes {
		dt.nodes[i] = node(nd)
	}
	return nil
}
