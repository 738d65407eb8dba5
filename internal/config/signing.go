package config

import "time"

// SigningConfig configures ticket signatures.  Rotation is the key
// lifetime; RotateEvery, when positive, rotates proactively on a timer.
type SigningConfig struct {
	Algorithm   string
	Rotation    time.Duration
	RotateEvery time.Duration
	KeyPrefix   string
}

func LoadSigningConfig() SigningConfig {
	cfg := SigningConfig{
		Algorithm:   envStr("HMAC_ALGORITHM", "sha256"),
		Rotation:    time.Duration(envInt("HMAC_KEY_ROTATION_HOURS", 24)) * time.Hour,
		RotateEvery: envDur("HMAC_ROTATE_EVERY", 0),
		KeyPrefix:   envStr("HMAC_KEY_PREFIX", "hmac:"),
	}
	if cfg.Rotation <= 0 {
		cfg.Rotation = 24 * time.Hour
	}
	return cfg
}
