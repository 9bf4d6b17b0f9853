package factory

import (
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/pkg/errors"
)

// NewEngineFromStepSettings creates an engine with the standard factory.
func NewEngineFromStepSettings(stepSettings *settings.StepSettings, options ...engine.Option) (engine.Engine, error) {
	return NewStandardEngineFactory().CreateEngine(stepSettings, options...)
}

// NewEngineFromSettingsFile loads step settings from a YAML file and creates
// the matching engine.
func NewEngineFromSettingsFile(path string, options ...engine.Option) (engine.Engine, *settings.StepSettings, error) {
	stepSettings, err := settings.NewStepSettingsFromFile(path)
	if err != nil {
		return nil, nil, err
	}
	e, err := NewEngineFromStepSettings(stepSettings, options...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not create engine from %s", path)
	}
	return e, stepSettings, nil
}
