package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the gateway configuration from path (YAML), applies
// GB28181GW_-prefixed environment overrides, and fills unset fields with
// defaults before validating.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("GB28181GW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := defaults()
	applyDefaultsToViper(v, &cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaultsToViper seeds viper's own default layer so that keys absent
// from both the file and the environment still resolve through Unmarshal.
func applyDefaultsToViper(v *viper.Viper, cfg *GlobalConfig) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.pattern", cfg.Log.Pattern)
	v.SetDefault("log.time", cfg.Log.Time)

	v.SetDefault("sip.listen_addr", cfg.SIP.ListenAddr)
	v.SetDefault("sip.idle_timeout", cfg.SIP.IdleTimeout)
	v.SetDefault("sip.register_expires", cfg.SIP.RegisterExpires)

	v.SetDefault("media.listen_addr", cfg.Media.ListenAddr)
	v.SetDefault("media.idle_timeout", cfg.Media.IdleTimeout)
	v.SetDefault("media.max_unbound_packets", cfg.Media.MaxUnboundPackets)

	v.SetDefault("candidate", cfg.Candidate)

	v.SetDefault("session.connecting_timeout", cfg.Session.ConnectingTimeout)
	v.SetDefault("session.max_connecting_retries", cfg.Session.MaxConnectingRetries)
	v.SetDefault("session.reinvite_wait", cfg.Session.ReinviteWait)
	v.SetDefault("session.drive_interval", cfg.Session.DriveInterval)

	v.SetDefault("rtmp.output_template", cfg.RTMP.OutputTemplate)

	v.SetDefault("http.listen_addr", cfg.HTTP.ListenAddr)
	v.SetDefault("http.socket_path", cfg.HTTP.SocketPath)

	v.SetDefault("domain.flag", cfg.Domain.Flag)
	v.SetDefault("domain.region", cfg.Domain.Region)
}
