package agent

import (
	"encoding/json"
	"fmt"

	"github.com/afroash/envdash/internal/models"
)

// EncodePayload renders a sensor reading as an ingest payload: the three
// core measurements plus any auxiliary fields. ID and timestamp are left to the server.
func EncodePayload(r *models.Reading) (json.RawMessage, error) {
	out := make(map[string]any, 3+r.Ext.Len())
	for k, v := range r.Ext.Fields {
		if models.IsCoreField(k) {
			continue
		}
		out[k] = v
	}
	out[models.FieldTemperature] = r.Temperature
	out[models.FieldHumidity] = r.Humidity
	out[models.FieldSound] = r.Sound

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}
