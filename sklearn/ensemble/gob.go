package ensemble

import (
	"bytes"
	"encoding/gob"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/sklearn/tree"
)

// Snapshot is the gob form of a RandomForestClassifier.
type Snapshot struct {
	State              model.ModelState
	NEstimators        int
	Criterion          string
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxFeatures        string
	Bootstrap          bool
	RandomState        int64
	NJobs              int
	Classes            []int
	NFeatures          int
	Estimators         []*tree.DecisionTreeClassifier
	FeatureImportances []float64
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	snap := Snapshot{
		State:              rf.state.GetState(),
		NEstimators:        rf.nEstimators,
		Criterion:          rf.criterion,
		MaxDepth:           rf.maxDepth,
		MinSamplesSplit:    rf.minSamplesSplit,
		MinSamplesLeaf:     rf.minSamplesLeaf,
		MaxFeatures:        rf.maxFeatures,
		Bootstrap:          rf.bootstrap,
		RandomState:        rf.randomState,
		NJobs:              rf.nJobs,
		Classes:            rf.classes_,
		NFeatures:          rf.nFeatures_,
		Estimators:         rf.estimators_,
		FeatureImportances: rf.featureImportances_,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	rf.state.SetState(snap.State)
	rf.nEstimators = snap.NEstimators
	rf.criterion = snap.Criterion
	rf.maxDepth = snap.MaxDepth
	rf.minSamplesSplit = snap.MinSamplesSplit
	rf.minSamplesLeaf = snap.MinSamplesLeaf
	rf.maxFeatures = snap.MaxFeatures
	rf.bootstrap = snap.Bootstrap
	rf.randomState = snap.RandomState
	rf.nJobs = snap.NJobs
	rf.classes_ = snap.Classes
	rf.nFeatures_ = snap.NFeatures
	rf.estimators_ = snap.Estimators
	rf.featureImportances_ = snap.FeatureImportances
	return nil
}
