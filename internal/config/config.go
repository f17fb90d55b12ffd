package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS     GPSConfig     `yaml:"gps"`
	Modem   ModemConfig   `yaml:"modem"`
	Tracker TrackerConfig `yaml:"tracker"`
	Signals SignalsConfig `yaml:"signals"`
	Display DisplayConfig `yaml:"display"`
	Web     WebConfig     `yaml:"web"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	UDP     UDPConfig     `yaml:"udp"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is one of: modem, serial, gpsd.
	Source           string        `yaml:"source"`
	Device           string        `yaml:"device"`
	Baud             int           `yaml:"baud"`
	GPSDAddr         string        `yaml:"gpsd_addr"`
	LocalOffsetHours int           `yaml:"local_offset_hours"`
	CoordFormat      string        `yaml:"coord_format"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	// SentenceLog, when set, receives every accepted NMEA character.
	SentenceLog string `yaml:"sentence_log"`
}

type ModemConfig struct {
	Enable          bool          `yaml:"enable"`
	Device          string        `yaml:"device"`
	Baud            int           `yaml:"baud"`
	APN             string        `yaml:"apn"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	ResetTimeout    time.Duration `yaml:"reset_timeout"`
	BootTimeout     time.Duration `yaml:"boot_timeout"`
	GPSReadInterval time.Duration `yaml:"gps_read_interval"`
}

type TrackerConfig struct {
	ID              string        `yaml:"id"`
	Phone           string        `yaml:"phone"`
	SMSEnable       bool          `yaml:"sms_enable"`
	TraccarURL      string        `yaml:"traccar_url"`
	TraccarInterval time.Duration `yaml:"traccar_interval"`
}

type SignalsConfig struct {
	Enable bool `yaml:"enable"`
	// Chip is the gpiochip device; empty selects the first chip.
	Chip           string        `yaml:"chip"`
	LeftRelay      int           `yaml:"left_relay"`
	RightRelay     int           `yaml:"right_relay"`
	EmergencyLight int           `yaml:"emergency_light"`
	LeftButton     int           `yaml:"left_button"`
	RightButton    int           `yaml:"right_button"`
	HazardButton   int           `yaml:"hazard_button"`
	SMSButton      int           `yaml:"sms_button"`
	BlinkPeriod    time.Duration `yaml:"blink_period"`
	Debounce       time.Duration `yaml:"debounce"`
	SMSCooldown    time.Duration `yaml:"sms_cooldown"`
	EmergencyPulse time.Duration `yaml:"emergency_pulse"`
}

type DisplayConfig struct {
	Enable  bool          `yaml:"enable"`
	Bus     string        `yaml:"bus"`
	Refresh time.Duration `yaml:"refresh"`
	Width   int           `yaml:"width"`
	Height  int           `yaml:"height"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type UDPConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

type StoreConfig struct {
	Enable   bool          `yaml:"enable"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Tracker.ID == "" {
		return fmt.Errorf("tracker.id is required")
	}
	if cfg.Tracker.SMSEnable && cfg.Tracker.Phone == "" {
		return fmt.Errorf("tracker.phone is required when tracker.sms_enable is true")
	}
	if cfg.Tracker.TraccarInterval <= 0 {
		cfg.Tracker.TraccarInterval = 10 * time.Second
	}

	// GPS defaults (safe even if disabled).
	g := &cfg.GPS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "modem"
	}
	switch g.Source {
	case "modem", "serial", "gpsd":
	default:
		return fmt.Errorf("gps.source must be one of: modem, serial, gpsd")
	}
	if g.Baud <= 0 {
		g.Baud = 9600
	}
	if g.GPSDAddr == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}
	if g.LocalOffsetHours < -12 || g.LocalOffsetHours > 14 {
		return fmt.Errorf("gps.local_offset_hours must be between -12 and 14")
	}
	g.CoordFormat = strings.ToLower(strings.TrimSpace(g.CoordFormat))
	if g.CoordFormat == "" {
		g.CoordFormat = "dd"
	}
	switch g.CoordFormat {
	case "dd", "dms", "ddm":
	default:
		return fmt.Errorf("gps.coord_format must be one of: dd, dms, ddm")
	}
	if g.StaleAfter <= 0 {
		g.StaleAfter = 10 * time.Second
	}

	m := &cfg.Modem
	if m.Baud <= 0 {
		m.Baud = 115200
	}
	if m.CommandTimeout <= 0 {
		m.CommandTimeout = 200 * time.Millisecond
	}
	if m.ResetTimeout <= 0 {
		m.ResetTimeout = 1 * time.Second
	}
	if m.BootTimeout <= 0 {
		m.BootTimeout = 60 * time.Second
	}
	if m.GPSReadInterval <= 0 {
		m.GPSReadInterval = 1 * time.Second
	}
	if m.GPSReadInterval < time.Second {
		return fmt.Errorf("modem.gps_read_interval must be >= 1s")
	}
	if m.Enable && strings.TrimSpace(m.APN) == "" {
		return fmt.Errorf("modem.apn is required when modem.enable is true")
	}
	if g.Enable && g.Source == "modem" && !m.Enable {
		return fmt.Errorf("gps.source=modem requires modem.enable")
	}
	if cfg.Tracker.SMSEnable && !m.Enable {
		return fmt.Errorf("tracker.sms_enable requires modem.enable")
	}

	s := &cfg.Signals
	defaultPin(&s.LeftRelay, 14)
	defaultPin(&s.RightRelay, 13)
	defaultPin(&s.EmergencyLight, 23)
	defaultPin(&s.LeftButton, 5)
	defaultPin(&s.RightButton, 4)
	defaultPin(&s.HazardButton, 18)
	defaultPin(&s.SMSButton, 19)
	if s.BlinkPeriod <= 0 {
		s.BlinkPeriod = 400 * time.Millisecond
	}
	if s.Debounce <= 0 {
		s.Debounce = 500 * time.Millisecond
	}
	if s.SMSCooldown <= 0 {
		s.SMSCooldown = 5 * time.Second
	}
	if s.EmergencyPulse <= 0 {
		s.EmergencyPulse = 200 * time.Millisecond
	}
	if s.Enable {
		seen := map[int]string{}
		for _, p := range []struct {
			name string
			line int
		}{
			{"left_relay", s.LeftRelay},
			{"right_relay", s.RightRelay},
			{"emergency_light", s.EmergencyLight},
			{"left_button", s.LeftButton},
			{"right_button", s.RightButton},
			{"hazard_button", s.HazardButton},
			{"sms_button", s.SMSButton},
		} {
			if prev, ok := seen[p.line]; ok {
				return fmt.Errorf("signals.%s and signals.%s use the same line %d", prev, p.name, p.line)
			}
			seen[p.line] = p.name
		}
	}

	d := &cfg.Display
	if d.Refresh <= 0 {
		d.Refresh = 1 * time.Second
	}
	if d.Width <= 0 {
		d.Width = 128
	}
	if d.Height <= 0 {
		d.Height = 64
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	q := &cfg.MQTT
	if q.Enable && strings.TrimSpace(q.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if q.ClientID == "" {
		q.ClientID = "a9g-" + cfg.Tracker.ID
	}
	if q.Topic == "" {
		q.Topic = "tracker/" + cfg.Tracker.ID + "/fix"
	}

	if cfg.UDP.Enable && cfg.UDP.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	if cfg.UDP.Interval <= 0 {
		cfg.UDP.Interval = 1 * time.Second
	}

	if cfg.Store.Enable && cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required when store.enable is true")
	}
	if cfg.Store.Interval <= 0 {
		cfg.Store.Interval = 30 * time.Second
	}

	l := &cfg.Logging
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 3
	}
	return nil
}

// defaultPin fills unset GPIO line offsets. Line 0 is never used for a
// signal, so zero means unset.
func defaultPin(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}
