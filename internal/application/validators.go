package application

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// UnitTypes lists the unit types a plan may declare, in the order they are
// documented.
var UnitTypes = []string{"borda", "markov_chain", "normalize", "top_k"}

// ValidateUnitParameters validates the parameters for a specific unit type,
// ensuring values meet domain constraints before any unit is built.
// ValidateUnitParameters returns an error if parameter decoding fails
// or if any validation rule is violated.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	paramMap := map[string]any{}
	if !params.IsZero() {
		if err := params.Decode(&paramMap); err != nil {
			return fmt.Errorf("failed to decode parameters: %w", err)
		}
	}

	switch unitType {
	case "borda":
		return validateBordaParams(paramMap)
	case "markov_chain":
		return validateMarkovChainParams(paramMap)
	case "normalize":
		return validateNormalizeParams(paramMap)
	case "top_k":
		return validateTopKParams(paramMap)
	default:
		return fmt.Errorf("unknown unit type: %s", unitType)
	}
}

// validateBordaParams checks the statistic name, the p-norm exponent and
// primary_rankings.
func validateBordaParams(params map[string]any) error {
	if s, ok := params["statistic"]; ok {
		str, ok := s.(string)
		if !ok {
			return fmt.Errorf("statistic must be a string")
		}
		valid := []string{"median", "geometric_mean", "pnorm"}
		if !slices.Contains(valid, str) {
			return fmt.Errorf("invalid statistic: %s", str)
		}
	}

	if p, ok, err := numberParam(params, "p"); err != nil {
		return err
	} else if ok && p <= 0 {
		return fmt.Errorf("p must be greater than 0")
	}

	return validateNonNegativeInt(params, "primary_rankings")
}

// validateMarkovChainParams checks the rule, the damping range, the solver
// block and the integer knobs.
func validateMarkovChainParams(params map[string]any) error {
	if rule, ok := params["rule"]; ok {
		str, ok := rule.(string)
		if !ok {
			return fmt.Errorf("rule must be a string")
		}
		if !slices.Contains([]string{"mc1", "mc2", "mc3"}, str) {
			return fmt.Errorf("invalid rule: %s", str)
		}
	}

	if a, ok, err := numberParam(params, "damping"); err != nil {
		return err
	} else if ok && (a < 0 || a >= 1) {
		return fmt.Errorf("damping must be in [0, 1)")
	}

	if solver, ok := params["solver"]; ok {
		block, ok := solver.(map[string]any)
		if !ok {
			return fmt.Errorf("solver must be a mapping")
		}
		if tol, ok, err := numberParam(block, "tolerance"); err != nil {
			return fmt.Errorf("solver: %w", err)
		} else if ok && tol < 0 {
			return fmt.Errorf("solver: tolerance must be non-negative")
		}
		if err := validateNonNegativeInt(block, "max_iterations"); err != nil {
			return fmt.Errorf("solver: %w", err)
		}
		if fixed, ok := block["fixed"]; ok {
			if _, ok := fixed.(bool); !ok {
				return fmt.Errorf("solver: fixed must be a boolean")
			}
		}
	}

	if err := validateNonNegativeInt(params, "parallelism"); err != nil {
		return err
	}
	return validateNonNegativeInt(params, "primary_rankings")
}

// validateNormalizeParams validates parameters for normalize units.
func validateNormalizeParams(params map[string]any) error {
	if reverse, ok := params["reverse"]; ok {
		if _, ok := reverse.(bool); !ok {
			return fmt.Errorf("reverse must be a boolean")
		}
	}
	return nil
}

// validateTopKParams validates parameters for top_k units.
func validateTopKParams(params map[string]any) error {
	k, ok := params["k"]
	if !ok {
		return fmt.Errorf("top_k requires 'k' parameter")
	}
	n, ok := k.(int)
	if !ok {
		return fmt.Errorf("k must be an integer")
	}
	if n < 1 {
		return fmt.Errorf("k must be at least 1")
	}
	if target, ok := params["target"]; ok {
		if _, ok := target.(string); !ok {
			return fmt.Errorf("target must be a string")
		}
	}
	return nil
}

// numberParam reads an optional numeric parameter. YAML decodes integers
// as int and everything else as float64; both are accepted.
func numberParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
}

func validateNonNegativeInt(params map[string]any, key string) error {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	n, ok := raw.(int)
	if !ok {
		return fmt.Errorf("%s must be an integer", key)
	}
	if n < 0 {
		return fmt.Errorf("%s must be non-negative", key)
	}
	return nil
}

// RegisterPlanValidators registers custom validation functions with
// the validator instance for use in plan configuration validation.
// RegisterPlanValidators returns an error if any validator registration
// fails.
func RegisterPlanValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("unitid", validateUnitID); err != nil {
		return fmt.Errorf("failed to register unitid validator: %w", err)
	}
	return nil
}

// validateUnitID accepts identifiers made of ASCII letters, digits,
// underscores and hyphens. Unit IDs double as consensus result keys and
// output file stems, so anything else is rejected.
func validateUnitID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" {
		return false
	}
	for _, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '_' || ch == '-':
		default:
			return false
		}
	}
	return true
}
