package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/docmodel/internal/logger"
	"github.com/mesh-intelligence/docmodel/internal/metrics"
	"github.com/mesh-intelligence/docmodel/internal/schema"
	"github.com/mesh-intelligence/docmodel/pkg/docstore"
	"github.com/mesh-intelligence/docmodel/pkg/model"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// session is an attached database with the schema's models bound to it.
type session struct {
	cfg     settings
	log     zerolog.Logger
	db      types.Database
	schema  *schema.Schema
	metrics *metrics.Metrics
}

// openSession builds the logger, loads the schema and attaches the backend.
// The caller must Close the session.
func openSession(cfg settings) (*session, error) {
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if err != nil {
		return nil, userError(err)
	}
	s := &session{cfg: cfg, log: log, metrics: metrics.New()}

	s.schema, err = schema.Load(cfg.SchemaPath,
		model.WithLogger(logger.Component(log, "model")),
		model.WithObserver(s.metrics),
	)
	if err != nil {
		return nil, userError(err)
	}

	s.db, err = docstore.Open(cfg.storeConfig(), docstore.WithLogger(logger.Component(log, "store")))
	if err != nil {
		return nil, err
	}
	if err := s.schema.Bind(s.db); err != nil {
		s.db.Detach()
		return nil, err
	}
	return s, nil
}

// model returns the schema model named name, which must be a document model.
func (s *session) model(name string) (*model.Model, error) {
	m, err := s.schema.Model(name)
	if err != nil {
		return nil, userError(fmt.Errorf("unknown model %q (see 'docmodel models')", name))
	}
	if m.Kind() != model.KindDocument {
		return nil, userError(fmt.Errorf("model %s is embedded and has no collection", name))
	}
	return m, nil
}

// Close detaches the database and writes the metrics textfile when one is
// configured.
func (s *session) Close() error {
	err := s.db.Detach()
	if s.cfg.MetricsFile != "" {
		if merr := s.metrics.WriteTextfile(s.cfg.MetricsFile); merr != nil {
			s.log.Warn().Err(merr).Str("file", s.cfg.MetricsFile).Msg("writing metrics")
			err = errors.Join(err, merr)
		}
	}
	return err
}
