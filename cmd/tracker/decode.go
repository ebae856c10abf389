package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txTracker/internal/config"
	"txTracker/internal/indexer"
	"txTracker/internal/model"
	"txTracker/internal/schema"
	"txTracker/internal/storage"
)

type decodeStats struct {
	total   int
	decoded int
	unknown int
	locked  int
	failed  int
}

func runDecode(cmd *cobra.Command, _ []string) (err error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	registry, err := buildRegistry(cfg.TokenAddress, cfg.TokenABI, cfg.EventsAddress, cfg.EventsABI)
	if err != nil {
		return err
	}
	locks, err := indexer.NewLockSet(cfg.LockAddresses)
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.CreateJsonl(cfg.Out)
	if err != nil {
		return err
	}
	defer closeJsonl(outWriter, cfg.Out, &err)

	errWriter, err := storage.CreateJsonl(cfg.Errors)
	if err != nil {
		return err
	}
	defer closeJsonl(errWriter, cfg.Errors, &err)

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	stats, err := decodeStream(inputFile, registry, locks, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("unknown", stats.unknown),
		zap.Int("locked", stats.locked),
		zap.Int("failed", stats.failed),
	)

	return nil
}

// closeJsonl flushes w and reports the failure through errp unless an earlier error is set.
func closeJsonl(w *storage.JsonlWriter, path string, errp *error) {
	if err := w.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("write %s: %w", path, err)
	}
}

// decodeStream decodes one raw log per input line. Lines that fail to parse, validate
// or decode are reported to errs; unknown logs still produce placeholder events.
func decodeStream(in io.Reader, registry *schema.Registry, locks *indexer.LockSet, out, errs *storage.JsonlWriter) (decodeStats, error) {
	var stats decodeStats

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		var record model.RawLog
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			if err := errs.Write(model.DecodeError{Line: lineNo, Stage: model.StageParse, Error: err.Error()}); err != nil {
				return stats, err
			}
			continue
		}
		if err := record.Validate(); err != nil {
			stats.failed++
			if err := errs.Write(decodeErrorFromRecord(lineNo, model.StageValidate, record, err)); err != nil {
				return stats, err
			}
			continue
		}

		values, err := registry.Decode(record)
		if err != nil {
			stats.unknown++
			if err := errs.Write(decodeErrorFromRecord(lineNo, model.StageDecode, record, err)); err != nil {
				return stats, err
			}
			values = model.UnknownDecoded()
		} else {
			stats.decoded++
		}

		event := model.NewEvent(record, values)
		if locks.Classify(&event) {
			stats.locked++
		}
		if err := out.Write(event); err != nil {
			return stats, err
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func decodeErrorFromRecord(line int, stage string, record model.RawLog, err error) model.DecodeError {
	return model.DecodeError{
		Line:        line,
		Stage:       stage,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}
