package site

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/absmach/fedridge/pkg/fl"
	"gonum.org/v1/gonum/mat"
)

// BiasLabel names the constant column appended to every row.
const BiasLabel = "bias"

// DefaultFields are the FreeSurfer aseg measures a selection may name.
var DefaultFields = []string{
	"Left-Lateral-Ventricle", "Left-Inf-Lat-Vent", "Left-Cerebellum-White-Matter",
	"Left-Cerebellum-Cortex", "Left-Thalamus-Proper", "Left-Caudate", "Left-Putamen",
	"Left-Pallidum", "3rd-Ventricle", "4th-Ventricle", "Brain-Stem", "Left-Hippocampus",
	"Left-Amygdala", "CSF", "Left-Accumbens-area", "Left-VentralDC", "Left-vessel",
	"Left-choroid-plexus", "Right-Lateral-Ventricle", "Right-Inf-Lat-Vent",
	"Right-Cerebellum-White-Matter", "Right-Cerebellum-Cortex", "Right-Thalamus-Proper",
	"Right-Caudate", "Right-Putamen", "Right-Pallidum", "Right-Hippocampus", "Right-Amygdala",
	"Right-Accumbens-area", "Right-VentralDC", "Right-vessel", "Right-choroid-plexus",
	"5th-Ventricle", "WM-hypointensities", "non-WM-hypointensities", "Optic-Chiasm",
	"CC_Posterior", "CC_Mid_Posterior", "CC_Central", "CC_Mid_Anterior", "CC_Anterior",
	"BrainSegVol", "BrainSegVolNotVent", "BrainSegVolNotVentSurf", "lhCortexVol",
	"rhCortexVol", "CortexVol", "lhCorticalWhiteMatterVol", "rhCorticalWhiteMatterVol",
	"CorticalWhiteMatterVol", "SubCortGrayVol", "TotalGrayVol", "SupraTentorialVol",
	"SupraTentorialVolNotVent", "SupraTentorialVolNotVentVox", "MaskVol",
	"BrainSegVol-to-eTIV", "MaskVol-to-eTIV", "lhSurfaceHoles", "rhSurfaceHoles",
	"SurfaceHoles", "EstimatedTotalIntraCranialVol",
}

// Dataset is a site's private data: the biased design matrix and the
// response. It never leaves the site.
type Dataset struct {
	X       *mat.Dense
	Y       []float64
	XLabels []string
	YLabel  string
}

func (d Dataset) Count() int {
	return len(d.Y)
}

func (d Dataset) NumFeatures() int {
	if d.X == nil {
		return 0
	}
	_, k := d.X.Dims()

	return k
}

// Source builds a site's dataset.
type Source interface {
	Dataset(ctx context.Context) (Dataset, error)
}

// Record is one subject: covariate tags and measured features.
type Record struct {
	ID       string             `json:"id"       toml:"id"`
	Tags     map[string]any     `json:"tags"     toml:"tags"`
	Features map[string]float64 `json:"features" toml:"features"`
}

// RecordSource turns records into a dataset. Covariates are the records'
// tags in name order with booleans mapped to ±1 and non-numeric values
// dropped. The response is the first selected feature.
type RecordSource struct {
	Records   []Record
	Selection []string
	// Fields lists the recognised feature names. Nil means DefaultFields.
	Fields []string
}

var _ Source = (*RecordSource)(nil)

func (s RecordSource) Dataset(ctx context.Context) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	if len(s.Selection) == 0 {
		return Dataset{}, fl.Validation(fl.ErrEmptyFeatures)
	}
	fields := s.Fields
	if fields == nil {
		fields = DefaultFields
	}
	for _, f := range s.Selection {
		if !slices.Contains(fields, f) {
			return Dataset{}, fl.Validation(fmt.Errorf("%w: %q", fl.ErrUnknownFeature, f))
		}
	}
	if len(s.Records) == 0 {
		return Dataset{}, fl.Validation(fmt.Errorf("%w: no records", fl.ErrIncompleteRecord))
	}

	response := s.Selection[0]
	rows := make([][]float64, len(s.Records))
	y := make([]float64, len(s.Records))
	var labels []string
	for i, rec := range s.Records {
		v, ok := rec.Features[response]
		if !ok {
			return Dataset{}, fl.Validation(fmt.Errorf("%w: record %q lacks %q", fl.ErrIncompleteRecord, rec.ID, response))
		}
		y[i] = v

		row, names := normalizeTags(rec.Tags)
		if i == 0 {
			labels = names
		} else if !slices.Equal(names, labels) {
			return Dataset{}, fl.Validation(fmt.Errorf("%w: record %q has covariates %v, expected %v",
				fl.ErrIncompleteRecord, rec.ID, names, labels))
		}
		rows[i] = row
	}

	return biased(rows, y, labels, response)
}

// MatrixSource serves already parsed covariates. A bias column is appended.
type MatrixSource struct {
	Rows    [][]float64
	Y       []float64
	XLabels []string
	YLabel  string
}

var _ Source = (*MatrixSource)(nil)

func (s MatrixSource) Dataset(ctx context.Context) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	if len(s.Rows) == 0 {
		return Dataset{}, fl.Validation(fmt.Errorf("%w: no rows", fl.ErrIncompleteRecord))
	}
	if len(s.Rows) != len(s.Y) {
		return Dataset{}, fl.Validation(fmt.Errorf("%w: %d rows, %d responses", fl.ErrIncompleteRecord, len(s.Rows), len(s.Y)))
	}
	for i, r := range s.Rows {
		if len(r) != len(s.Rows[0]) {
			return Dataset{}, fl.Validation(fmt.Errorf("%w: row %d has %d covariates, expected %d",
				fl.ErrIncompleteRecord, i, len(r), len(s.Rows[0])))
		}
	}

	return biased(s.Rows, s.Y, s.XLabels, s.YLabel)
}

// normalizeTags returns the numeric covariates of tags in name order.
func normalizeTags(tags map[string]any) ([]float64, []string) {
	var (
		row   []float64
		names []string
	)
	for _, name := range slices.Sorted(maps.Keys(tags)) {
		switch v := tags[name].(type) {
		case bool:
			if v {
				row = append(row, 1)
			} else {
				row = append(row, -1)
			}
		case float64:
			row = append(row, v)
		case float32:
			row = append(row, float64(v))
		case int:
			row = append(row, float64(v))
		case int64:
			row = append(row, float64(v))
		default:
			continue
		}
		names = append(names, name)
	}

	return row, names
}

func biased(rows [][]float64, y []float64, labels []string, yLabel string) (Dataset, error) {
	k := len(rows[0]) + 1
	data := make([]float64, 0, len(rows)*k)
	for _, r := range rows {
		data = append(data, r...)
		data = append(data, 1)
	}

	var xLabels []string
	if labels != nil {
		xLabels = append(slices.Clone(labels), BiasLabel)
	}

	return Dataset{
		X:       mat.NewDense(len(rows), k, data),
		Y:       slices.Clone(y),
		XLabels: xLabels,
		YLabel:  yLabel,
	}, nil
}
