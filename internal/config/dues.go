package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DuesDefaults are fallback values applied when a group policy omits them.
type DuesDefaults struct {
	GracePeriodDays    int   `mapstructure:"gracePeriodDays"`
	ReminderOffsetDays []int `mapstructure:"reminderOffsetDays"`
	DueDayOfMonth      int   `mapstructure:"dueDayOfMonth"`
}

func DefaultDuesDefaults() DuesDefaults {
	return DuesDefaults{
		GracePeriodDays:    3,
		ReminderOffsetDays: []int{7, 3, 1},
		DueDayOfMonth:      1,
	}
}

type DuesDefaultsHolder struct {
	current atomic.Value // holds DuesDefaults
}

func NewDuesDefaultsHolder(log *zap.Logger) (*DuesDefaultsHolder, error) {
	log = log.Named("config.dues")
	v := viper.New()

	v.SetConfigName("dues")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/duekeeper")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DUEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultDuesDefaults()
		v.SetDefault("dues.gracePeriodDays", defaults.GracePeriodDays)
		v.SetDefault("dues.reminderOffsetDays", defaults.ReminderOffsetDays)
		v.SetDefault("dues.dueDayOfMonth", defaults.DueDayOfMonth)
	}

	var cfg DuesDefaults
	if err := v.UnmarshalKey("dues", &cfg); err != nil {
		return nil, err
	}
	if err := validateDuesDefaults(cfg); err != nil {
		return nil, err
	}

	holder := &DuesDefaultsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DuesDefaults
		if err := v.UnmarshalKey("dues", &updated); err != nil {
			log.Warn("dues defaults reload failed", zap.Error(err))
			return
		}
		if err := validateDuesDefaults(updated); err != nil {
			log.Warn("dues defaults reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("dues defaults reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DuesDefaultsHolder) Get() DuesDefaults {
	return h.current.Load().(DuesDefaults)
}

func validateDuesDefaults(cfg DuesDefaults) error {
	if cfg.GracePeriodDays < 0 {
		return errors.New("dues.gracePeriodDays cannot be negative")
	}
	if cfg.DueDayOfMonth < 1 || cfg.DueDayOfMonth > 28 {
		return errors.New("dues.dueDayOfMonth must be within 1-28")
	}
	for _, offset := range cfg.ReminderOffsetDays {
		if offset <= 0 {
			return errors.New("dues.reminderOffsetDays must be positive")
		}
	}
	return nil
}
