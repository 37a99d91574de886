// Package config handles the gateway's global configuration, loaded with
// viper from a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"time"

	"firestige.xyz/otus/internal/log"
)

// GlobalConfig is the top-level configuration, maps to the document root.
type GlobalConfig struct {
	Log       log.Config      `mapstructure:"log"`
	SIP       SIPConfig       `mapstructure:"sip"`
	Media     MediaConfig     `mapstructure:"media"`
	Candidate string          `mapstructure:"candidate"` // "*" = auto-detect from the SIP accept-side address
	Session   SessionConfig   `mapstructure:"session"`
	RTMP      RTMPConfig      `mapstructure:"rtmp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Domain    DomainConfig    `mapstructure:"domain"`
}

// ─── SIP listener ───

// SIPConfig configures the GB28181 SIP TCP listener (C4).
type SIPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`     // per-read deadline, default 30s
	RegisterExpires uint32        `mapstructure:"register_expires"` // seconds offered in REGISTER 200 OK
}

// ─── Media listener ───

// MediaConfig configures the GB28181 media (RTP-over-TCP) TCP listener (C5).
type MediaConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"` // per-read deadline, default 5s
	MaxUnboundPackets uint32        `mapstructure:"max_unbound_packets"`
}

// ─── Session driver ───

// SessionConfig tunes the session coordinator (C6).
type SessionConfig struct {
	ConnectingTimeout    time.Duration `mapstructure:"connecting_timeout"`
	MaxConnectingRetries uint32        `mapstructure:"max_connecting_retries"`
	ReinviteWait         time.Duration `mapstructure:"reinvite_wait"`
	DriveInterval        time.Duration `mapstructure:"drive_interval"`
	// IdleTTL evicts a registered session from the resource registry if its
	// driver goes this long without a Touch call, e.g. because its
	// goroutine panicked or a device vanished without a clean BYE. Zero
	// disables the sweep.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// ─── RTMP output ───

// RTMPConfig configures the upstream RTMP publish target (C7).
type RTMPConfig struct {
	// OutputTemplate contains the literal "[stream]" placeholder, replaced
	// with the device id, e.g. rtmp://127.0.0.1/live/[stream].
	OutputTemplate string `mapstructure:"output_template"`
}

// ─── HTTP control surface ───

// HTTPConfig configures the control API (C8) and CLI control endpoints.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	SocketPath string `mapstructure:"socket_path"` // non-empty = serve over a unix socket instead of TCP
}

// ─── SSRC domain synthesis ───

// DomainConfig supplies the fields GB/T 28181 §9.1-style SSRC synthesis
// needs when this gateway originates an INVITE (see sip.SynthesizeSSRC).
type DomainConfig struct {
	Flag   int    `mapstructure:"flag"`   // leading digit: 0 = map/control-domain, 1 = alarm-domain
	Region string `mapstructure:"region"` // 5-digit region code, digits 2-6 of the SSRC
}

// Validate checks invariants Load cannot express via defaults alone.
func (c *GlobalConfig) Validate() error {
	if c.SIP.ListenAddr == "" {
		return fmt.Errorf("config: sip.listen_addr is required")
	}
	if c.Media.ListenAddr == "" {
		return fmt.Errorf("config: media.listen_addr is required")
	}
	if c.RTMP.OutputTemplate == "" {
		return fmt.Errorf("config: rtmp.output_template is required")
	}
	if c.Domain.Flag < 0 || c.Domain.Flag > 9 {
		return fmt.Errorf("config: domain.flag must be a single digit 0-9")
	}
	if len(c.Domain.Region) != 5 {
		return fmt.Errorf("config: domain.region must be exactly 5 digits, got %q", c.Domain.Region)
	}
	return nil
}

func defaults() GlobalConfig {
	return GlobalConfig{
		Log: log.Config{
			Level:   "info",
			Pattern: "%time %level %field %msg\n",
			Time:    "2006-01-02T15:04:05.000Z07:00",
		},
		SIP: SIPConfig{
			ListenAddr:      ":5060",
			IdleTimeout:     30 * time.Second,
			RegisterExpires: 3600,
		},
		Media: MediaConfig{
			ListenAddr:        ":9000",
			IdleTimeout:       5 * time.Second,
			MaxUnboundPackets: 10,
		},
		Candidate: "*",
		Session: SessionConfig{
			ConnectingTimeout:    15 * time.Second,
			MaxConnectingRetries: 3,
			ReinviteWait:         5 * time.Second,
			DriveInterval:        1 * time.Second,
			IdleTTL:              90 * time.Second,
		},
		RTMP: RTMPConfig{
			OutputTemplate: "rtmp://127.0.0.1/live/[stream]",
		},
		HTTP: HTTPConfig{
			ListenAddr: ":1985",
		},
		Domain: DomainConfig{
			Flag:   1,
			Region: "34020",
		},
	}
}
