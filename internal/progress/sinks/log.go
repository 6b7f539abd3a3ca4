package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
)

// LogSink writes events as structured logs. Not-found items are logged at
// debug level since they dominate a scan.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("run", evt.Run),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageItemDone:
			fields = append(fields,
				zap.String("item", evt.Item),
				zap.String("status", string(evt.Status)),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
				zap.Int("completed", evt.Completed),
				zap.Int("total", evt.Total),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			switch evt.Status {
			case probe.StatusNotFound:
				s.logger.Debug("item done", fields...)
			case probe.StatusFailed:
				s.logger.Warn("item failed", fields...)
			default:
				s.logger.Info("item done", fields...)
			}
		case progress.StageRunError:
			s.logger.Error("run failed", append(fields, zap.String("note", evt.Note), zap.Duration("dur", evt.Dur))...)
		default:
			fields = append(fields, zap.Int("completed", evt.Completed), zap.Int("total", evt.Total))
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
			s.logger.Info("run "+stageVerb(evt.Stage), fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func stageVerb(stage progress.Stage) string {
	switch stage {
	case progress.StageRunStart:
		return "started"
	case progress.StageRunDone:
		return "finished"
	default:
		return string(stage)
	}
}
