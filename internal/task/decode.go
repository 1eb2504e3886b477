package task

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decodeConfig decodes a definition's config map into out. Durations may be
// written as strings ("30s"); unknown keys are rejected.
func decodeConfig(config map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
