package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

const cliUserID = "routinectl"

// templateFile mirrors the API's JSON shape, so files can be exported from
// GET /templates and edited by hand.
type templateFile struct {
	Templates []map[string]interface{} `yaml:"templates"`
}

type fileTemplate struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Habits      []domain.Habit      `json:"habits"`
	ContextRule *domain.ContextRule `json:"context_rule"`
	IsDefault   bool                `json:"is_default"`
	LastUsedAt  *time.Time          `json:"last_used_at"`
}

// loadTemplates validates every template in a YAML file the same way the API
// does on create.
func loadTemplates(path string) ([]*domain.RoutineTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("%s: no templates", path)
	}

	templates := make([]*domain.RoutineTemplate, 0, len(file.Templates))
	for i, entry := range file.Templates {
		// yaml.v3 yields JSON compatible maps; going through JSON reuses the
		// API field names and custom unmarshalers.
		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("template #%d: %w", i+1, err)
		}
		var ft fileTemplate
		if err := json.Unmarshal(encoded, &ft); err != nil {
			return nil, fmt.Errorf("template #%d: %w", i+1, err)
		}

		t, err := domain.NewRoutineTemplate(cliUserID, ft.Name, ft.Habits, ft.ContextRule, ft.IsDefault)
		if err != nil {
			return nil, fmt.Errorf("template #%d (%s): %w", i+1, ft.Name, err)
		}
		if ft.ID != "" {
			t.ID = ft.ID
		}
		if ft.LastUsedAt != nil {
			t.MarkUsed(*ft.LastUsedAt)
		}
		templates = append(templates, t)
	}
	return templates, nil
}
