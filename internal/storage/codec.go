package storage

import (
	"encoding/json"
	"errors"

	"decipher/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header for the current schema and codec.
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

func EncodeReferenceModel(ref model.ReferenceModel) ([]byte, error) {
	return json.Marshal(ref)
}

func DecodeReferenceModel(data []byte) (model.ReferenceModel, error) {
	var ref model.ReferenceModel
	if err := json.Unmarshal(data, &ref); err != nil {
		return model.ReferenceModel{}, err
	}
	if err := checkVersion(ref.VersionedRecord); err != nil {
		return model.ReferenceModel{}, err
	}
	return ref, nil
}

func EncodeTrace(trace []model.TracePoint) ([]byte, error) {
	return json.Marshal(trace)
}

func DecodeTrace(data []byte) ([]model.TracePoint, error) {
	var trace []model.TracePoint
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, err
	}
	return trace, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
