package services

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

type runDocument struct {
	View   table.Table   `json:"view"`
	Issues []issue.Issue `json:"issues"`
}

// DiffRuns returns a JSON Patch turning the view and issues of from into those of to.
func DiffRuns(from, to *Run) ([]byte, error) {
	if from == nil || to == nil {
		return nil, errors.New("diff needs two runs")
	}
	src, err := json.Marshal(runDocument{View: from.View, Issues: from.Issues})
	if err != nil {
		return nil, errors.Wrap(err, "marshal source run")
	}
	dst, err := json.Marshal(runDocument{View: to.View, Issues: to.Issues})
	if err != nil {
		return nil, errors.Wrap(err, "marshal target run")
	}
	patch, err := jsondiff.CompareJSON(src, dst)
	if err != nil {
		return nil, errors.Wrap(err, "compare runs")
	}
	if len(patch) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(patch)
}
