package forecast

import (
	"sync"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast/holidays"
)

// SeasonalityMode selects how the seasonal term combines with the trend.
type SeasonalityMode string

const (
	// Additive adds the seasonal term to the trend.
	Additive SeasonalityMode = "additive"
	// Multiplicative scales the seasonal term by the trend. Holiday and
	// regressor effects stay additive in either mode.
	Multiplicative SeasonalityMode = "multiplicative"
)

// SeasonalComponent is one periodic term of the decomposition. Name is the
// component's identity within a configuration.
type SeasonalComponent struct {
	Name         string  `json:"name"`
	Period       float64 `json:"period"` // days
	FourierOrder int     `json:"fourier_order"`
	PriorScale   float64 `json:"prior_scale"`
}

// RegressorBinding names a numeric exogenous column and its regularization
// strength.
type RegressorBinding struct {
	Name       string  `json:"name"`
	PriorScale float64 `json:"prior_scale"`
}

// Default hyperparameters for business metrics: quarter and month boundary
// effects matter, so quarterly and monthly components are always present in
// addition to the usual weekly/yearly pair.
const (
	DefaultChangepointPriorScale = 0.05
	DefaultSeasonalityPriorScale = 10.0
	DefaultHolidaysPriorScale    = 10.0
	DefaultRegressorPriorScale   = 10.0
	DefaultIntervalWidth         = 0.95
	DefaultUncertaintySamples    = 1000
	DefaultChangepoints          = 25
)

// ModelConfiguration assembles every hyperparameter of a model before
// fitting. All setters fail with a configuration error once a fit has
// started; the frozen configuration is then owned by the fitted model.
type ModelConfiguration struct {
	mu     sync.RWMutex
	frozen bool

	mode               SeasonalityMode
	changepointPrior   float64
	seasonalityPrior   float64
	holidaysPrior      float64
	intervalWidth      float64
	uncertaintySamples int
	changepoints       int
	seasonal           []SeasonalComponent
	regressors         []RegressorBinding
	holidayCountry     string
}

// NewConfiguration returns a configuration with the engine defaults:
// multiplicative seasonality, weekly/yearly/quarterly/monthly components,
// US holiday calendar, 95% intervals.
func NewConfiguration() *ModelConfiguration {
	return &ModelConfiguration{
		mode:               Multiplicative,
		changepointPrior:   DefaultChangepointPriorScale,
		seasonalityPrior:   DefaultSeasonalityPriorScale,
		holidaysPrior:      DefaultHolidaysPriorScale,
		intervalWidth:      DefaultIntervalWidth,
		uncertaintySamples: DefaultUncertaintySamples,
		changepoints:       DefaultChangepoints,
		seasonal: []SeasonalComponent{
			{Name: "weekly", Period: 7, FourierOrder: 3, PriorScale: DefaultSeasonalityPriorScale},
			{Name: "yearly", Period: 365.25, FourierOrder: 10, PriorScale: DefaultSeasonalityPriorScale},
			{Name: "quarterly", Period: 365.25 / 4, FourierOrder: 5, PriorScale: DefaultSeasonalityPriorScale},
			{Name: "monthly", Period: 30.5, FourierOrder: 3, PriorScale: DefaultSeasonalityPriorScale},
		},
		holidayCountry: "US",
	}
}

func (c *ModelConfiguration) guard() error {
	if c.frozen {
		return errors.Newf(errors.KindConfiguration, "configuration is frozen: fitting has started")
	}
	return nil
}

// SetSeasonalityMode selects additive or multiplicative composition.
func (c *ModelConfiguration) SetSeasonalityMode(mode SeasonalityMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if mode != Additive && mode != Multiplicative {
		return errors.Newf(errors.KindConfiguration, "unknown seasonality mode %q", mode)
	}
	c.mode = mode
	return nil
}

// SetChangepointPriorScale controls trend flexibility at changepoints.
func (c *ModelConfiguration) SetChangepointPriorScale(scale float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if scale <= 0 {
		return errors.Newf(errors.KindConfiguration, "changepoint prior scale must be > 0, got %v", scale)
	}
	c.changepointPrior = scale
	return nil
}

// SetSeasonalityPriorScale sets the default prior for seasonal components
// added after this call and for auto-added defaults already present.
func (c *ModelConfiguration) SetSeasonalityPriorScale(scale float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if scale <= 0 {
		return errors.Newf(errors.KindConfiguration, "seasonality prior scale must be > 0, got %v", scale)
	}
	c.seasonalityPrior = scale
	for i := range c.seasonal {
		c.seasonal[i].PriorScale = scale
	}
	return nil
}

// SetHolidaysPriorScale controls how strongly holiday effects are damped.
func (c *ModelConfiguration) SetHolidaysPriorScale(scale float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if scale <= 0 {
		return errors.Newf(errors.KindConfiguration, "holidays prior scale must be > 0, got %v", scale)
	}
	c.holidaysPrior = scale
	return nil
}

// SetIntervalWidth sets the nominal coverage of prediction intervals.
func (c *ModelConfiguration) SetIntervalWidth(width float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if width <= 0 || width >= 1 {
		return errors.Newf(errors.KindConfiguration, "interval width must be in (0, 1), got %v", width)
	}
	c.intervalWidth = width
	return nil
}

// SetUncertaintySamples sets how many trajectories the interval simulation
// draws per predict call.
func (c *ModelConfiguration) SetUncertaintySamples(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if n < 1 {
		return errors.Newf(errors.KindConfiguration, "uncertainty samples must be >= 1, got %d", n)
	}
	c.uncertaintySamples = n
	return nil
}

// SetChangepoints sets the number of candidate trend changepoints.
func (c *ModelConfiguration) SetChangepoints(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if n < 0 {
		return errors.Newf(errors.KindConfiguration, "changepoint count must be >= 0, got %d", n)
	}
	c.changepoints = n
	return nil
}

// SetHolidayCountry binds a holiday calendar identifier; empty disables
// holiday effects. The identifier is resolved at fit time.
func (c *ModelConfiguration) SetHolidayCountry(country string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	c.holidayCountry = country
	return nil
}

// AddSeasonality adds a custom seasonal component. Component names must be
// unique; a zero PriorScale inherits the configuration default.
func (c *ModelConfiguration) AddSeasonality(comp SeasonalComponent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if comp.Name == "" {
		return errors.Newf(errors.KindConfiguration, "seasonal component name must not be empty")
	}
	if comp.Period <= 0 {
		return errors.Newf(errors.KindConfiguration, "seasonal component %q period must be > 0", comp.Name)
	}
	if comp.FourierOrder < 1 {
		return errors.Newf(errors.KindConfiguration, "seasonal component %q fourier order must be >= 1", comp.Name)
	}
	for _, existing := range c.seasonal {
		if existing.Name == comp.Name {
			return errors.Newf(errors.KindConfiguration, "seasonal component %q already configured", comp.Name)
		}
	}
	if comp.PriorScale == 0 {
		comp.PriorScale = c.seasonalityPrior
	}
	if comp.PriorScale < 0 {
		return errors.Newf(errors.KindConfiguration, "seasonal component %q prior scale must be > 0", comp.Name)
	}
	c.seasonal = append(c.seasonal, comp)
	return nil
}

// RemoveSeasonality drops a component by name. Unknown names are a no-op so
// callers can disable defaults unconditionally.
func (c *ModelConfiguration) RemoveSeasonality(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	out := c.seasonal[:0]
	for _, comp := range c.seasonal {
		if comp.Name != name {
			out = append(out, comp)
		}
	}
	c.seasonal = out
	return nil
}

// AddRegressor binds an exogenous column explicitly. Columns not bound here
// are still auto-discovered at fit time from the prepared series. A zero
// prior scale takes the regressor default.
func (c *ModelConfiguration) AddRegressor(name string, priorScale float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if name == "" {
		return errors.Newf(errors.KindConfiguration, "regressor name must not be empty")
	}
	for _, existing := range c.regressors {
		if existing.Name == name {
			return errors.Newf(errors.KindConfiguration, "regressor %q already bound", name)
		}
	}
	if priorScale == 0 {
		priorScale = DefaultRegressorPriorScale
	}
	if priorScale < 0 {
		return errors.Newf(errors.KindConfiguration, "regressor %q prior scale must be > 0", name)
	}
	c.regressors = append(c.regressors, RegressorBinding{Name: name, PriorScale: priorScale})
	return nil
}

// freeze marks the configuration immutable. Idempotent.
func (c *ModelConfiguration) freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether fitting has started on this configuration.
func (c *ModelConfiguration) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Mode returns the seasonality mode.
func (c *ModelConfiguration) Mode() SeasonalityMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// ChangepointPriorScale returns the trend flexibility prior.
func (c *ModelConfiguration) ChangepointPriorScale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changepointPrior
}

// SeasonalityPriorScale returns the seasonal default prior.
func (c *ModelConfiguration) SeasonalityPriorScale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seasonalityPrior
}

// HolidaysPriorScale returns the holiday prior.
func (c *ModelConfiguration) HolidaysPriorScale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidaysPrior
}

// IntervalWidth returns the nominal interval coverage.
func (c *ModelConfiguration) IntervalWidth() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.intervalWidth
}

// UncertaintySamples returns the simulation sample count.
func (c *ModelConfiguration) UncertaintySamples() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uncertaintySamples
}

// Changepoints returns the candidate changepoint count.
func (c *ModelConfiguration) Changepoints() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changepoints
}

// HolidayCountry returns the bound calendar identifier.
func (c *ModelConfiguration) HolidayCountry() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidayCountry
}

// Seasonal returns a copy of the configured seasonal components.
func (c *ModelConfiguration) Seasonal() []SeasonalComponent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SeasonalComponent, len(c.seasonal))
	copy(out, c.seasonal)
	return out
}

// Regressors returns a copy of the explicit regressor bindings.
func (c *ModelConfiguration) Regressors() []RegressorBinding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RegressorBinding, len(c.regressors))
	copy(out, c.regressors)
	return out
}

// shortestPeriod returns the smallest configured seasonal period in days,
// or 0 when no components are configured.
func (c *ModelConfiguration) shortestPeriod() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	shortest := 0.0
	for _, comp := range c.seasonal {
		if shortest == 0 || comp.Period < shortest {
			shortest = comp.Period
		}
	}
	return shortest
}

// resolveRegressors merges explicit bindings with columns auto-discovered
// from the prepared series, keeping explicit bindings first and series
// column order for the rest. Explicit bindings must exist in the series.
func (c *ModelConfiguration) resolveRegressors(series *dataset.PreparedSeries) ([]RegressorBinding, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	available := make(map[string]bool, len(series.RegressorNames))
	for _, name := range series.RegressorNames {
		available[name] = true
	}

	bound := make(map[string]bool, len(c.regressors))
	out := make([]RegressorBinding, 0, len(c.regressors)+len(series.RegressorNames))
	for _, binding := range c.regressors {
		if !available[binding.Name] {
			return nil, errors.Newf(errors.KindConfiguration,
				"regressor %q is not a column of the prepared series", binding.Name)
		}
		bound[binding.Name] = true
		out = append(out, binding)
	}
	for _, name := range series.RegressorNames {
		if bound[name] {
			continue
		}
		out = append(out, RegressorBinding{Name: name, PriorScale: DefaultRegressorPriorScale})
	}
	return out, nil
}

// resolveCalendar resolves the configured holiday country, nil when holiday
// effects are disabled.
func (c *ModelConfiguration) resolveCalendar() (holidays.Calendar, error) {
	c.mu.RLock()
	country := c.holidayCountry
	c.mu.RUnlock()

	if country == "" {
		return nil, nil
	}
	cal, ok := holidays.Lookup(country)
	if !ok {
		return nil, errors.Newf(errors.KindConfiguration, "no holiday calendar registered for %q", country)
	}
	return cal, nil
}

// snapshot captures the configuration values for summaries and artifacts.
func (c *ModelConfiguration) snapshot() configSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seasonal := make([]SeasonalComponent, len(c.seasonal))
	copy(seasonal, c.seasonal)
	regressors := make([]RegressorBinding, len(c.regressors))
	copy(regressors, c.regressors)
	return configSnapshot{
		Mode:               c.mode,
		ChangepointPrior:   c.changepointPrior,
		SeasonalityPrior:   c.seasonalityPrior,
		HolidaysPrior:      c.holidaysPrior,
		IntervalWidth:      c.intervalWidth,
		UncertaintySamples: c.uncertaintySamples,
		Changepoints:       c.changepoints,
		Seasonal:           seasonal,
		Regressors:         regressors,
		HolidayCountry:     c.holidayCountry,
	}
}

// configSnapshot is the serializable form of a frozen configuration.
type configSnapshot struct {
	Mode               SeasonalityMode     `json:"mode"`
	ChangepointPrior   float64             `json:"changepoint_prior_scale"`
	SeasonalityPrior   float64             `json:"seasonality_prior_scale"`
	HolidaysPrior      float64             `json:"holidays_prior_scale"`
	IntervalWidth      float64             `json:"interval_width"`
	UncertaintySamples int                 `json:"uncertainty_samples"`
	Changepoints       int                 `json:"changepoints"`
	Seasonal           []SeasonalComponent `json:"seasonal"`
	Regressors         []RegressorBinding  `json:"regressors"`
	HolidayCountry     string              `json:"holiday_country"`
}

// restoreConfiguration rebuilds a frozen configuration from a snapshot.
func restoreConfiguration(snap configSnapshot) *ModelConfiguration {
	return &ModelConfiguration{
		frozen:             true,
		mode:               snap.Mode,
		changepointPrior:   snap.ChangepointPrior,
		seasonalityPrior:   snap.SeasonalityPrior,
		holidaysPrior:      snap.HolidaysPrior,
		intervalWidth:      snap.IntervalWidth,
		uncertaintySamples: snap.UncertaintySamples,
		changepoints:       snap.Changepoints,
		seasonal:           snap.Seasonal,
		regressors:         snap.Regressors,
		holidayCountry:     snap.HolidayCountry,
	}
}
