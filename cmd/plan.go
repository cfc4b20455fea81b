package cmd

import (
	"github.com/Manu343726/schedcheck/pkg/conformance"
	"github.com/Manu343726/schedcheck/pkg/sim/model"
	"github.com/spf13/viper"
)

// loadPlan starts from the defaults of the variant, then applies the shared
// "plan" config section and the variant's own "variants.<variant>" section
func loadPlan(variant string) (conformance.Plan, error) {
	if variant == "" {
		variant = viper.GetString("variant")
	}

	plan, err := conformance.DefaultPlan(variant)
	if err != nil {
		return plan, err
	}

	for _, key := range []string{"plan", "variants." + variant} {
		if err := applyPlan(key, &plan); err != nil {
			return plan, err
		}
	}
	if window := viper.GetDuration("window"); window > 0 {
		plan.Window = window
	}

	return plan, plan.Validate()
}

// applyPlan overrides the plan with a config section. A timebase in the
// section replaces the current one as a whole
func applyPlan(key string, plan *conformance.Plan) error {
	if !viper.IsSet(key) {
		return nil
	}
	if viper.IsSet(key + ".timebase") {
		plan.Timebase = nil
	}
	return viper.UnmarshalKey(key, plan)
}

// loadModel starts from the ARTX program model and applies the "model" config section
func loadModel(plan conformance.Plan) (model.Config, error) {
	config := model.DefaultConfig()
	config.Entry = plan.Entry
	config.Scheduler = plan.Scheduler
	config.Vector = plan.Vector
	config.Background = plan.Background
	config.Scope = plan.Scope
	if plan.StackPointer != 0 {
		config.StackPointer = plan.StackPointer
	}

	if viper.IsSet("model") {
		if err := viper.UnmarshalKey("model", &config); err != nil {
			return config, err
		}
	}

	return config, config.Validate()
}
