package forecast

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast/holidays"
)

const secondsPerDay = 86400.0

// dayOffset maps a timestamp to fractional days since the Unix epoch. Using
// a fixed epoch keeps Fourier phases identical between fit and predict.
func dayOffset(t time.Time) float64 {
	return float64(t.Unix())/secondsPerDay + float64(t.Nanosecond())/(secondsPerDay*1e9)
}

// fourierTerms fills out with interleaved sin/cos harmonics of day for the
// given period. len(out) must be 2*order.
func fourierTerms(day, period float64, order int, out []float64) {
	for k := 1; k <= order; k++ {
		angle := 2 * math.Pi * float64(k) * day / period
		out[2*(k-1)] = math.Sin(angle)
		out[2*(k-1)+1] = math.Cos(angle)
	}
}

// scaledChangepoints places n candidate changepoints at the scaled times of
// evenly spaced history points across the first 80% of the series. Duplicate
// locations from repeated timestamps are collapsed.
func scaledChangepoints(taus []float64, n int) []float64 {
	if n <= 0 || len(taus) < 3 {
		return nil
	}
	limit := int(math.Floor(0.8 * float64(len(taus)-1)))
	if limit < 1 {
		return nil
	}
	if n > limit {
		n = limit
	}
	out := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		idx := int(math.Round(float64(i) * float64(limit) / float64(n)))
		if idx < 1 {
			idx = 1
		}
		if idx > limit {
			idx = limit
		}
		tau := taus[idx]
		if len(out) > 0 && tau <= out[len(out)-1] {
			continue
		}
		if tau <= 0 {
			continue
		}
		out = append(out, tau)
	}
	return out
}

// trendDesign builds the piecewise-linear trend basis: scaled time, an
// intercept and one hinge column per changepoint. Slope and intercept are
// effectively unpenalized; hinge columns carry the changepoint prior.
func trendDesign(taus, changepoints []float64, changepointPrior float64) (*mat.Dense, []float64) {
	cols := 2 + len(changepoints)
	X := mat.NewDense(len(taus), cols, nil)
	penalties := make([]float64, cols)
	penalties[0] = 1e-10
	penalties[1] = 1e-10
	hinge := 1.0 / (changepointPrior * changepointPrior)
	for j := range changepoints {
		penalties[2+j] = hinge
	}
	for i, tau := range taus {
		X.Set(i, 0, tau)
		X.Set(i, 1, 1)
		for j, cp := range changepoints {
			if tau > cp {
				X.Set(i, 2+j, tau-cp)
			}
		}
	}
	return X, penalties
}

// designBlock locates one named group of columns inside a stage-two design.
type designBlock struct {
	name  string
	start int
	width int
}

// componentDesign is the assembled stage-two regression problem: seasonal
// harmonics, holiday indicators and standardized regressors side by side.
type componentDesign struct {
	X         *mat.Dense
	penalties []float64
	blocks    []designBlock

	holidayNames []string
	regressors   []RegressorBinding
	regMeans     []float64
	regStds      []float64
}

func (d *componentDesign) block(name string) (designBlock, bool) {
	for _, b := range d.blocks {
		if b.name == name {
			return b, true
		}
	}
	return designBlock{}, false
}

// holidayColumns returns the sorted holiday names active in the window and
// a per-name date index.
func holidayColumns(cal holidays.Calendar, start, end time.Time) ([]string, map[string]map[string]bool) {
	if cal == nil {
		return nil, nil
	}
	byName := make(map[string]map[string]bool)
	for _, h := range cal.HolidaysBetween(start, end) {
		key := holidays.DateKey(h.Date)
		if byName[h.Name] == nil {
			byName[h.Name] = make(map[string]bool)
		}
		byName[h.Name][key] = true
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, byName
}

// standardize returns the mean and standard deviation used to scale a
// regressor column. A constant column gets unit scale.
func standardize(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 1
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	if std == 0 {
		std = 1
	}
	return mean, std
}

// buildComponentDesign assembles the seasonal, holiday and regressor columns
// for the training timestamps. In multiplicative mode the seasonal columns
// are scaled by the fitted trend so their coefficients act as fractions of
// trend level.
type componentInputs struct {
	timestamps []time.Time
	days       []float64
	trend      []float64
	mode       SeasonalityMode
	seasonal   []SeasonalComponent
	holidayCal holidays.Calendar
	holidayPri float64
	regressors []RegressorBinding
	regValues  map[string][]float64
}

func buildComponentDesign(in componentInputs) *componentDesign {
	rows := len(in.timestamps)

	cols := 0
	for _, comp := range in.seasonal {
		cols += 2 * comp.FourierOrder
	}
	var holidayNames []string
	var holidayIndex map[string]map[string]bool
	if in.holidayCal != nil && rows > 0 {
		holidayNames, holidayIndex = holidayColumns(in.holidayCal, in.timestamps[0], in.timestamps[rows-1])
	}
	cols += len(holidayNames)
	cols += len(in.regressors)

	d := &componentDesign{
		X:            mat.NewDense(rows, maxInt(cols, 1), nil),
		penalties:    make([]float64, maxInt(cols, 1)),
		holidayNames: holidayNames,
		regressors:   in.regressors,
	}
	if cols == 0 {
		d.X = nil
		d.penalties = nil
		return d
	}

	col := 0
	scratch := make([]float64, 0, 32)
	for _, comp := range in.seasonal {
		width := 2 * comp.FourierOrder
		d.blocks = append(d.blocks, designBlock{name: comp.Name, start: col, width: width})
		penalty := 1.0 / (comp.PriorScale * comp.PriorScale)
		if cap(scratch) < width {
			scratch = make([]float64, width)
		}
		terms := scratch[:width]
		for i := 0; i < rows; i++ {
			fourierTerms(in.days[i], comp.Period, comp.FourierOrder, terms)
			scale := 1.0
			if in.mode == Multiplicative {
				scale = in.trend[i]
			}
			for j, v := range terms {
				d.X.Set(i, col+j, v*scale)
			}
		}
		for j := 0; j < width; j++ {
			d.penalties[col+j] = penalty
		}
		col += width
	}

	if len(holidayNames) > 0 {
		d.blocks = append(d.blocks, designBlock{name: "holidays", start: col, width: len(holidayNames)})
		penalty := 1.0 / (in.holidayPri * in.holidayPri)
		for j, name := range holidayNames {
			dates := holidayIndex[name]
			for i := 0; i < rows; i++ {
				if dates[holidays.DateKey(in.timestamps[i])] {
					d.X.Set(i, col+j, 1)
				}
			}
			d.penalties[col+j] = penalty
		}
		col += len(holidayNames)
	}

	if len(in.regressors) > 0 {
		d.blocks = append(d.blocks, designBlock{name: "regressors", start: col, width: len(in.regressors)})
		d.regMeans = make([]float64, len(in.regressors))
		d.regStds = make([]float64, len(in.regressors))
		for j, binding := range in.regressors {
			values := in.regValues[binding.Name]
			mean, std := standardize(values)
			d.regMeans[j] = mean
			d.regStds[j] = std
			for i := 0; i < rows; i++ {
				d.X.Set(i, col+j, (values[i]-mean)/std)
			}
			d.penalties[col+j] = 1.0 / (binding.PriorScale * binding.PriorScale)
		}
	}

	return d
}

// solveRidge solves min ||y - Xb||^2 + b'diag(penalties)b through the normal
// equations with a Cholesky factorization.
func solveRidge(X *mat.Dense, y, penalties []float64) ([]float64, error) {
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, errors.Newf(errors.KindTraining, "design has %d rows but target has %d", rows, len(y))
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(X.At(i, j)) || math.IsInf(X.At(i, j), 0) {
				return nil, errors.Newf(errors.KindTraining, "design matrix contains a non-finite value at row %d", i)
			}
		}
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	sym := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			v := xtx.At(i, j)
			if i == j {
				v += penalties[i]
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.Newf(errors.KindTraining, "normal equations are not positive definite")
	}

	yVec := mat.NewVecDense(rows, y)
	xty := mat.NewVecDense(cols, nil)
	xty.MulVec(X.T(), yVec)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, xty); err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "solving ridge system")
	}

	out := make([]float64, cols)
	for i := 0; i < cols; i++ {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
