package main

import (
	"github.com/rs/zerolog"
)

// zerologAdapter exposes a zerolog.Logger through the calculation.Logger
// interface.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Debugf(format string, args ...any) { a.log.Debug().Msgf(format, args...) }
func (a zerologAdapter) Infof(format string, args ...any)  { a.log.Info().Msgf(format, args...) }
func (a zerologAdapter) Warnf(format string, args ...any)  { a.log.Warn().Msgf(format, args...) }
func (a zerologAdapter) Errorf(format string, args ...any) { a.log.Error().Msgf(format, args...) }
