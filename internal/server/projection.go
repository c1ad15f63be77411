package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// parseFields splits the comma-separated fields parameter. The id is always kept.
func parseFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	fields := []string{"id"}
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f == "" || f == "id" {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// project keeps only fields of every element of items. Fields missing from
// an element are omitted; nil fields returns the elements unchanged.
func project[T any](items []T, fields []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for i := range items {
		raw, err := json.Marshal(items[i])
		if err != nil {
			return nil, fmt.Errorf("marshal item: %w", err)
		}
		if len(fields) == 0 {
			out = append(out, raw)
			continue
		}

		projected := []byte("{}")
		for _, field := range fields {
			value := gjson.GetBytes(raw, gjson.Escape(field))
			if !value.Exists() {
				continue
			}
			projected, err = sjson.SetRawBytes(projected, gjson.Escape(field), []byte(value.Raw))
			if err != nil {
				return nil, fmt.Errorf("project %s: %w", field, err)
			}
		}
		out = append(out, projected)
	}
	return out, nil
}
