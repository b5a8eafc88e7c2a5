package main

import (
	"encoding/json"
	"fmt"
	"os"

	"melodyrl/pkg/melodyrl"
)

// loadRunRequestFromConfig reads a flat JSON object keyed by the snake_case
// run parameter names. Absent keys keep their defaults.
func loadRunRequestFromConfig(path string) (melodyrl.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return melodyrl.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return melodyrl.RunRequest{}, fmt.Errorf("decode run config %s: %w", path, err)
	}

	req := defaultRunRequest()
	for key, value := range raw {
		if err := applyConfigValue(&req, key, value); err != nil {
			return melodyrl.RunRequest{}, fmt.Errorf("run config %s: %w", path, err)
		}
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (melodyrl.RunRequest, error) {
	if configPath == "" {
		return defaultRunRequest(), nil
	}
	return loadRunRequestFromConfig(configPath)
}

func defaultRunRequest() melodyrl.RunRequest {
	return melodyrl.RunRequest{
		Episodes:         2000,
		Seed:             1,
		LearningRate:     0.1,
		Gamma:            0.95,
		Epsilon:          1.0,
		EpsilonSchedule:  "stochastic",
		PatternThreshold: 5.0,
		Tempo:            120,
		LogEvery:         100,
	}
}

func applyConfigValue(req *melodyrl.RunRequest, key string, value any) error {
	var ok bool
	switch key {
	case "episodes":
		req.Episodes, ok = asInt(value)
	case "seed":
		req.Seed, ok = asInt64(value)
	case "learning_rate":
		req.LearningRate, ok = asFloat64(value)
	case "gamma":
		req.Gamma, ok = asFloat64(value)
	case "epsilon":
		req.Epsilon, ok = asFloat64(value)
	case "generate_epsilon":
		req.GenerateEpsilon, ok = asFloat64(value)
	case "epsilon_schedule":
		req.EpsilonSchedule, ok = asString(value)
	case "pattern_threshold":
		req.PatternThreshold, ok = asFloat64(value)
	case "tempo":
		req.Tempo, ok = asInt(value)
	case "log_every":
		req.LogEvery, ok = asInt(value)
	case "no_drums":
		req.NoDrums, ok = asBool(value)
	case "no_chords":
		req.NoChords, ok = asBool(value)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	if !ok {
		return fmt.Errorf("invalid value for %s: %v", key, value)
	}
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *melodyrl.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "episodes":
			req.Episodes = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "lr":
			req.LearningRate = v.(float64)
		case "gamma":
			req.Gamma = v.(float64)
		case "epsilon":
			req.Epsilon = v.(float64)
		case "generate-epsilon":
			req.GenerateEpsilon = v.(float64)
		case "schedule":
			req.EpsilonSchedule = v.(string)
		case "pattern-threshold":
			req.PatternThreshold = v.(float64)
		case "tempo":
			req.Tempo = v.(int)
		case "log-every":
			req.LogEvery = v.(int)
		case "no-drums":
			req.NoDrums = v.(bool)
		case "no-chords":
			req.NoChords = v.(bool)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}
