package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
	"github.com/ekaya-inc/agenda-sync/pkg/transcription"
)

// segmentItemSchema describes one element of the segments argument.
var segmentItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"speaker": map[string]any{"type": "string", "description": "Speaker label as produced by the transcription service"},
		"text":    map[string]any{"type": "string", "description": "What the speaker said"},
		"start":   map[string]any{"type": "number", "description": "Start offset in milliseconds"},
		"end":     map[string]any{"type": "number", "description": "End offset in milliseconds"},
	},
	"required": []string{"text"},
}

// RegisterPipelineTools registers the conversation-processing tools.
func RegisterPipelineTools(s *server.MCPServer, deps *ToolDeps) {
	registerProcessTranscriptTool(s, deps)
	registerTranscribeAudioTool(s, deps)
}

// pipelineArgOptions are the pipeline arguments shared by both tools.
func pipelineArgOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(
			"reference_time",
			mcp.Description("Instant relative dates such as 'el próximo martes' resolve against (RFC 3339). Defaults to created_at, then now."),
		),
		mcp.WithBoolean(
			"dry_run",
			mcp.Description("Extract and validate only; nothing is written (default: false)"),
		),
		mcp.WithString(
			"min_confidence",
			mcp.Description("Lowest confidence written without confirmation"),
			mcp.Enum(string(models.ConfidenceLow), string(models.ConfidenceMedium), string(models.ConfidenceHigh)),
		),
	}
}

// parsePipelineOptions reads the shared pipeline arguments.
func parsePipelineOptions(req mcp.CallToolRequest, loc *time.Location) (services.PipelineOptions, error) {
	var opts services.PipelineOptions

	ref, err := getOptionalTime(req, "reference_time", loc)
	if err != nil {
		return opts, err
	}
	if ref != nil {
		opts.Reference = *ref
	}
	opts.DryRun, _ = getOptionalBool(req, "dry_run")

	switch c := models.Confidence(getOptionalString(req, "min_confidence")); c {
	case "", models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh:
		opts.MinConfidence = c
	default:
		return opts, fmt.Errorf("min_confidence must be low, medium or high, got %q", c)
	}
	return opts, nil
}

// registerProcessTranscriptTool adds process_transcript, which runs an
// already transcribed conversation through the pipeline.
func registerProcessTranscriptTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Process a transcribed conversation: normalize the segments, extract events and clients, " +
				"validate them and write them to the calendar and the database. " +
				"Returns every candidate: written records with their outcome, rejected candidates with the reason, " +
				"and low-confidence candidates pending confirmation (not written). " +
				"Reprocessing the same transcript does not create duplicates.",
		),
		mcp.WithArray(
			"segments",
			mcp.Required(),
			mcp.Description("Speaker-labeled segments in recording order"),
			mcp.Items(segmentItemSchema),
		),
		mcp.WithString(
			"created_at",
			mcp.Description("When the conversation took place (RFC 3339)"),
		),
		mcp.WithString(
			"timezone",
			mcp.Description("IANA timezone of the conversation, e.g. America/Mexico_City"),
		),
	}
	opts = append(opts, pipelineArgOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
	tool := mcp.NewTool("process_transcript", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var segments []models.RawSegment
		if err := decodeArgument(req, "segments", &segments); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(segments) == 0 {
			return NewErrorResult("invalid_parameters", "segments cannot be empty"), nil
		}

		timezone := getOptionalString(req, "timezone")
		loc, err := loadLocation(timezone, deps.DefaultTimezone)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		createdAt, err := getOptionalTime(req, "created_at", loc)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		pipelineOpts, err := parsePipelineOptions(req, loc)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		tr := &models.Transcript{
			Provider: "agent",
			Segments: segments,
			Timezone: timezone,
		}
		if createdAt != nil {
			tr.CreatedAt = *createdAt
		}

		report, err := deps.Pipeline.ProcessTranscript(ctx, tr, pipelineOpts)
		if err != nil {
			deps.Logger.Error("process_transcript failed", zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(report)
	})
}

// registerTranscribeAudioTool adds transcribe_audio, which transcribes a
// recording by URL and runs the result through the pipeline.
func registerTranscribeAudioTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Transcribe a recorded conversation from a URL and process it like process_transcript. " +
				"Speaker diarization is on by default.",
		),
		mcp.WithString(
			"audio_url",
			mcp.Required(),
			mcp.Description("Publicly reachable URL of the recording"),
		),
		mcp.WithBoolean(
			"diarize",
			mcp.Description("Label speakers (default: true)"),
		),
		mcp.WithString(
			"language",
			mcp.Description("ISO-639-1 language hint, e.g. es"),
		),
	}
	opts = append(opts, pipelineArgOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
	tool := mcp.NewTool("transcribe_audio", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		audioURL, err := req.RequireString("audio_url")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		audioURL = trimString(audioURL)
		if audioURL == "" {
			return NewErrorResult("invalid_parameters", "audio_url cannot be empty"), nil
		}

		loc, err := loadLocation("", deps.DefaultTimezone)
		if err != nil {
			return nil, err
		}
		pipelineOpts, err := parsePipelineOptions(req, loc)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		diarize, ok := getOptionalBool(req, "diarize")
		if !ok {
			diarize = true
		}
		topts := transcription.Options{
			Diarize:  diarize,
			Language: getOptionalString(req, "language"),
		}

		report, err := deps.Pipeline.ProcessAudioURL(ctx, audioURL, topts, pipelineOpts)
		if err != nil {
			deps.Logger.Error("transcribe_audio failed", zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(report)
	})
}
