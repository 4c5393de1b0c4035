package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/infra/breakers"
	"github.com/sawpanic/trendlab/internal/artifacts"
	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/infrastructure/db"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/persistence"
	"github.com/sawpanic/trendlab/internal/sweep"
	"github.com/sawpanic/trendlab/internal/telemetry"
)

// outputs fans a finished sweep out to every configured destination.
// Only the local artifact write can fail a command; remote writes log
// and carry on.
type outputs struct {
	writer *artifacts.Writer
	s3     *artifacts.S3Uploader
	s3cb   *breakers.Breaker
	influx *telemetry.InfluxPublisher
	dbm    *db.Manager
	sink   *persistence.Sink
}

// openOutputs connects to what the config enables. dir == "" skips the
// local artifacts and with them the S3 mirror.
func openOutputs(ctx context.Context, dir string) *outputs {
	o := &outputs{s3cb: breakers.New("s3")}
	if dir != "" {
		o.writer = artifacts.NewWriter(dir)
		if a := cfg.Artifacts; a.S3Bucket != "" {
			up, err := artifacts.NewS3Uploader(a.S3Bucket, a.S3Prefix, a.S3Region)
			if err != nil {
				log.Warn().Err(err).Str("bucket", a.S3Bucket).Msg("S3 upload disabled")
			} else {
				o.s3 = up
			}
		}
	}

	if cfg.Influx.Enabled() {
		p, err := telemetry.NewInfluxPublisher(cfg.Influx)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.Influx.URL).Msg("InfluxDB publishing disabled")
		} else {
			o.influx = p
		}
	}

	if cfg.Database.Enabled {
		m, err := db.NewManager(ctx, cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("Database unavailable, results will not be persisted")
		} else {
			o.dbm = m
			o.sink = persistence.NewSink(m.Repository(), breakers.New("postgres"))
		}
	}
	return o
}

// publish writes the outcome everywhere and returns the run directory.
func (o *outputs) publish(ctx context.Context, out *sweep.Outcome, exec backtest.ExecutionConfig, versions map[string]string) (string, error) {
	var runDir string
	if o.writer != nil {
		if _, err := o.writer.WriteRun(out, exec, versions); err != nil {
			return "", err
		}
		runDir = o.writer.RunDir(out.SweepID)
		log.Info().Str("dir", runDir).Msg("Artifacts written")

		if o.s3 != nil {
			err := o.s3cb.Do(func() error {
				keys, err := o.s3.UploadRun(ctx, runDir, out.SweepID)
				if err == nil {
					log.Info().Int("files", len(keys)).Str("bucket", o.s3.Bucket).Msg("Artifacts uploaded")
				}
				return err
			})
			if err != nil {
				log.Warn().Err(err).Str("breaker", o.s3cb.State()).Msg("Artifact upload failed")
			}
		}
	}

	if o.influx != nil {
		n, err := o.influx.Publish(out)
		if err != nil {
			log.Warn().Err(err).Msg("InfluxDB publish failed")
		} else {
			log.Debug().Int("points", n).Msg("Published results to InfluxDB")
		}
	}
	if o.sink.Enabled() && o.sink.WriteOutcome(ctx, out) {
		log.Info().Int("runs", len(out.Results)).Msg("Results persisted")
	}
	return runDir, nil
}

func (o *outputs) writeBoard(ctx context.Context, snap leaderboard.Snapshot) {
	if o.sink.Enabled() {
		o.sink.WriteLeaderboard(ctx, snap)
	}
}

func (o *outputs) Close() {
	if o.influx != nil {
		o.influx.Close()
	}
	if o.dbm != nil {
		if d := o.sink.Dropped(); d > 0 {
			log.Warn().Int64("dropped", d).Msg("Some database writes were dropped")
		}
		o.dbm.Close()
	}
}
