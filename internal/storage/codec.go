package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"melodyrl/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeMelody(m model.MelodyRecord) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMelody(data []byte) (model.MelodyRecord, error) {
	var melody model.MelodyRecord
	if err := json.Unmarshal(data, &melody); err != nil {
		return model.MelodyRecord{}, err
	}
	if err := checkVersion(melody.VersionedRecord); err != nil {
		return model.MelodyRecord{}, err
	}
	return melody, nil
}

func EncodeRewardHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeRewardHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
