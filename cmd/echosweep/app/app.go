package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/sonarlab/echoloc/array"
	"github.com/sonarlab/echoloc/field"
	"github.com/sonarlab/echoloc/internal/export"
	"github.com/sonarlab/echoloc/internal/render"
	"github.com/sonarlab/echoloc/locate"
	"github.com/sonarlab/echoloc/sweep"
	"github.com/sonarlab/echoloc/synth"
)

// Run executes a full grid sweep and writes the configured result sinks.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	driver, err := buildDriver(config, logger)
	if err != nil {
		return err
	}

	result, err := driver.Run(ctx,
		config.Grid.X.toRange(),
		config.Grid.Y.toRange(),
		config.Grid.Z.toRange(),
	)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}

	logger.Info("sweep summary",
		slog.String("points", humanize.Comma(int64(result.Points))),
		slog.String("failures", humanize.Comma(int64(result.Failures))),
		slog.Duration("elapsed", result.Elapsed),
		slog.Float64("meanErrorCm", result.MeanPositionErrorCm()),
	)

	if err := export.WriteCSVFile(config.Output.CSVPath, result.Records); err != nil {
		return err
	}
	logger.Info("wrote CSV", slog.String("path", config.Output.CSVPath))

	if config.Output.DBPath != "" {
		if err := storeRecords(ctx, config, result, logger); err != nil {
			return err
		}
	}

	if config.Output.HeatmapDir != "" {
		if err := renderHeatmaps(config, result, logger); err != nil {
			return err
		}
	}

	return nil
}

func buildDriver(config *Config, logger *slog.Logger) (*sweep.Driver, error) {
	layout, err := config.Layout()
	if err != nil {
		return nil, err
	}

	geom, err := array.New(layout, config.Array.EdgeM)
	if err != nil {
		return nil, fmt.Errorf("building %s array: %w", layout, err)
	}

	call := &synth.Call{
		StartFreq:    config.Call.StartFreqHz,
		EndFreq:      config.Call.EndFreqHz,
		Duration:     config.Call.DurationMs / 1000,
		SampleRate:   config.Field.SampleRateHz,
		TaperPercent: config.Call.TaperPercent,
	}
	if err := call.Validate(); err != nil {
		return nil, fmt.Errorf("call configuration: %w", err)
	}

	speed := config.Field.SpeedOfSound
	if speed == 0 {
		speed = field.SpeedOfSound
	}

	model := &field.Model{
		Geometry:     geom,
		SampleRate:   config.Field.SampleRateHz,
		SpeedOfSound: speed,
		SNRdB:        config.Field.snr(),
		Seed:         config.Field.Seed,
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("field configuration: %w", err)
	}

	return &sweep.Driver{
		Call:  call,
		Model: model,
		Solver: locate.Solver{
			MaxIterations: config.Solver.MaxIterations,
			Tolerance:     config.Solver.Tolerance,
		},
		Logger:  logger,
		Workers: config.Settings.Workers,
	}, nil
}

// storeRecords persists the sweep as a new session in the sqlite sink.
func storeRecords(ctx context.Context, config *Config, result *sweep.Result, logger *slog.Logger) error {
	store := export.NewSqliteStore(config.Output.DBPath)
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, config)
	if err != nil {
		return err
	}

	if err := store.StoreRecords(ctx, sessionID, result.Records); err != nil {
		return err
	}

	logger.Info("stored session",
		slog.String("path", config.Output.DBPath),
		slog.Int64("sessionID", sessionID),
	)

	return nil
}

// renderHeatmaps writes one position error heatmap per z-slice of the grid.
func renderHeatmaps(config *Config, result *sweep.Result, logger *slog.Logger) error {
	if err := os.MkdirAll(config.Output.HeatmapDir, 0o755); err != nil {
		return fmt.Errorf("creating heatmap directory: %w", err)
	}

	renderer, err := render.NewRenderer(render.Config{
		Theme:    render.Theme(config.Output.HeatmapTheme),
		FontPath: config.Output.FontPath,
	})
	if err != nil {
		return err
	}

	for i, z := range config.Grid.Z.toRange().Values() {
		path := filepath.Join(config.Output.HeatmapDir, fmt.Sprintf("slice-%03d.png", i))
		if err := renderer.WritePNG(path, result.Records, z); err != nil {
			return fmt.Errorf("rendering z=%g: %w", z, err)
		}

		logger.Debug("wrote heatmap", slog.String("path", path), slog.Float64("z", z))
	}

	return nil
}
