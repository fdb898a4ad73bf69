package feed

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/pkg/star/models"
)

var validate = validator.New()

// Decode converts raw records into T, dropping (and logging) records whose
// fields do not decode or fail validation.
func Decode[T any](log logger.Logger, records []models.Record) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := DecodeOne[T](rec)
		if err != nil {
			log.Warn("Dropping malformed record",
				"dataset", rec.DatasetID,
				"record_id", rec.RecordID,
				"error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// DecodeOne converts a single record.
func DecodeOne[T any](rec models.Record) (T, error) {
	var v T
	if len(rec.Fields) == 0 {
		return v, fmt.Errorf("record %s has no fields", rec.RecordID)
	}
	if err := json.Unmarshal(rec.Fields, &v); err != nil {
		return v, fmt.Errorf("decoding fields: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("validating fields: %w", err)
	}
	return v, nil
}
