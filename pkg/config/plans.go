package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/schema"
)

// LoadPlans reads a YAML file mapping table names to explicit column
// plans. Plans loaded here bypass schema inference but flow through the
// exact same writer path as inferred ones.
//
// The file format:
//
//	my_table:
//	  - name: category
//	    required: true
//	    physical_type: byte_array
//	    logical_type: {kind: string}
//	    dictionary: true
//	    query: SELECT category FROM my_table ORDER BY rowid
func LoadPlans(path string) (map[string][]schema.ColumnPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeConfig, "read plan file %s", path)
	}

	content := substituteEnvVars(string(data))

	plans := make(map[string][]schema.ColumnPlan)
	if err := yaml.Unmarshal([]byte(content), &plans); err != nil {
		return nil, errors.Wrapf(err, errors.TypeConfig, "parse plan file %s", path)
	}
	for table, cols := range plans {
		if len(cols) == 0 {
			return nil, errors.Newf(errors.TypeConfig, "plan file %s: table %s has no columns", path, table)
		}
		for _, plan := range cols {
			if err := plan.Validate(); err != nil {
				return nil, errors.Wrapf(err, errors.TypeConfig, "plan file %s: table %s", path, table)
			}
		}
	}
	return plans, nil
}

// SavePlans writes plans back out in the LoadPlans format, so an inferred
// schema can be captured, hand-tuned and replayed.
func SavePlans(path string, plans map[string][]schema.ColumnPlan) error {
	data, err := yaml.Marshal(plans)
	if err != nil {
		return errors.Wrap(err, errors.TypeConfig, "marshal plans")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.TypeConfig, "write plan file %s", path)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
