package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"safebot-be/pkg/store"

	"github.com/xeipuuv/gojsonschema"
)

const maxSummaryLength = 500

// profileSchema is built from the store enums so the schema and the Go types cannot drift.
var profileSchema = buildProfileSchema()

func buildProfileSchema() *gojsonschema.Schema {
	roles := make([]string, len(store.Roles))
	for i, r := range store.Roles {
		roles[i] = string(r)
	}
	risks := make([]string, len(store.RiskLevels))
	for i, r := range store.RiskLevels {
		risks[i] = string(r)
	}

	doc := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"role", "risk", "summary"},
		"properties": map[string]interface{}{
			"role":    map[string]interface{}{"type": "string", "enum": roles},
			"risk":    map[string]interface{}{"type": "string", "enum": risks},
			"summary": map[string]interface{}{"type": "string", "maxLength": maxSummaryLength},
		},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("classifier: marshal schema: %v", err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("classifier: compile schema: %v", err))
	}
	return schema
}

func validateAgainstSchema(data []byte) error {
	result, err := profileSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(errs, "; "))
	}
	return nil
}

// extractJSON keeps the outermost object so a model wrapping JSON in prose or
// code fences still decodes; anything else is left for the schema to reject.
func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
