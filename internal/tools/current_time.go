package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/antoniostano/linerelay/internal/llm"
)

const timeLayout = "2006-01-02 15:04:05"

// CurrentTime reports the wall clock in an IANA time zone.
type CurrentTime struct {
	defaultZone string
	now         func() time.Time
}

func NewCurrentTime(defaultZone string) *CurrentTime {
	if strings.TrimSpace(defaultZone) == "" {
		defaultZone = "Asia/Taipei"
	}
	return &CurrentTime{defaultZone: defaultZone, now: time.Now}
}

func (t *CurrentTime) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "get_current_time",
		Description: "Get the current date and time in a time zone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("IANA time zone such as Asia/Tokyo. Defaults to %s.", t.defaultZone),
				},
			},
		},
	}
}

func (t *CurrentTime) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	zone := strings.TrimSpace(in.Timezone)
	if zone == "" {
		zone = t.defaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("unknown time zone %q", zone)
	}
	return fmt.Sprintf("Current time in %s: %s", zone, t.now().In(loc).Format(timeLayout)), nil
}
