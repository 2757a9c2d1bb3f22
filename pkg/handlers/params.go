package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

// pipelineParams are the pipeline settings accepted on transcript routes.
type pipelineParams struct {
	Timezone      string `json:"timezone"`
	ReferenceTime string `json:"reference_time"`
	DryRun        bool   `json:"dry_run"`
	MinConfidence string `json:"min_confidence"`
}

// queryPipelineParams reads pipeline settings from query or form values.
func queryPipelineParams(r *http.Request) (pipelineParams, error) {
	p := pipelineParams{
		Timezone:      strings.TrimSpace(r.FormValue("timezone")),
		ReferenceTime: strings.TrimSpace(r.FormValue("reference_time")),
		MinConfidence: strings.TrimSpace(r.FormValue("min_confidence")),
	}
	dryRun, err := parseOptionalBool(r.FormValue("dry_run"))
	if err != nil {
		return p, fmt.Errorf("dry_run: %w", err)
	}
	p.DryRun = dryRun
	return p, nil
}

// options converts p into pipeline options. Times without an offset are read
// in the conversation's timezone, or defaultTZ.
func (p pipelineParams) options(defaultTZ string) (services.PipelineOptions, *time.Location, error) {
	opts := services.PipelineOptions{DryRun: p.DryRun}

	name := p.Timezone
	if name == "" {
		name = defaultTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return opts, nil, fmt.Errorf("unknown timezone %q", name)
	}

	if p.ReferenceTime != "" {
		ref, err := parseTimeIn(p.ReferenceTime, loc)
		if err != nil {
			return opts, nil, fmt.Errorf("reference_time: %w", err)
		}
		opts.Reference = ref
	}

	switch c := models.Confidence(p.MinConfidence); c {
	case "", models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh:
		opts.MinConfidence = c
	default:
		return opts, nil, fmt.Errorf("min_confidence must be low, medium or high, got %q", c)
	}
	return opts, loc, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseTimeIn(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

func parseOptionalBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
