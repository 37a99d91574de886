package log

import "gopkg.in/natefinch/lumberjack.v2"

// FileAppenderOpt configures the rotating file sink the process-wide
// logger writes alongside stdout. Devices run unattended for weeks at a time, so
// rotation by size/age is what keeps a gateway host's disk from filling.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`    // megabytes per file before rotation
	MaxBackups int    `mapstructure:"max_backups"` // retained rotated files
	MaxAge     int    `mapstructure:"max_age"`     // days a rotated file is kept
	Compress   bool   `mapstructure:"compress"`
}

// AddFileAppender appends a lumberjack-backed rotating writer to m. A zero
// FileAppenderOpt (no filename) is never passed here; newLogrusLogger only
// calls this once cfg.File.Filename is non-empty.
func (m *MultiWriter) AddFileAppender(opt FileAppenderOpt) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	})
	return m
}
