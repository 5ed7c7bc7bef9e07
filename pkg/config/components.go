package config

import (
	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/OldStager01/elastic-orchestrator/internal/policy"
	"github.com/OldStager01/elastic-orchestrator/internal/threshold"
	"github.com/OldStager01/elastic-orchestrator/pkg/database"
)

func (d DatabaseConfig) ToDBConfig() database.Config {
	return database.Config{
		Host:             d.Host,
		Port:             d.Port,
		Name:             d.Name,
		User:             d.User,
		Password:         d.Password,
		MaxConnections:   d.MaxConnections,
		SSLMode:          d.SSLMode,
		AutoMigrate:      d.AutoMigrate,
		ConnMaxLifetime:  d.ConnMaxLifetime,
		ConnMaxIdleTime:  d.ConnMaxIdleTime,
		PingTimeout:      d.PingTimeout,
		MigrationTimeout: d.MigrationTimeout,
	}
}

// ToWatchConfig assumes Validate has accepted the aggregation name.
func (w WatchConfig) ToWatchConfig() threshold.WatchConfig {
	agg, _ := threshold.ParseAggregation(w.Aggregation)
	return threshold.WatchConfig{Size: w.Size, Aggregation: agg}
}

func (p PolicyConfig) ToPolicyConfig() policy.Config {
	return policy.Config{
		RequestTimeout:  p.RequestTimeout,
		RescheduleDelay: p.RescheduleDelay,
	}
}

func (p PolicyConfig) Defaults() opstring.Defaults {
	return opstring.Defaults{
		MinServices: p.DefaultMinServices,
		MaxServices: p.DefaultMaxServices,
	}
}
