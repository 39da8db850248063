package ratelimit

// Config holds rate limiting configuration for outbound calls to the
// embedding provider and the ANN vector index.
type Config struct {
	Enabled   bool             `mapstructure:"enabled"`
	Global    LimitConfig      `mapstructure:"global"`
	Resources []ResourceLimit  `mapstructure:"resources"`
}

// LimitConfig defines rate limit parameters
type LimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// ResourceLimit defines a rate limit for one downstream resource
// (an embedding provider call, a vector-index query, and so on).
type ResourceLimit struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Resources: []ResourceLimit{
			{
				Name:              "embedding",
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
			{
				Name:              "vectorindex_query",
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
			{
				Name:              "vectorindex_upsert",
				RequestsPerSecond: 30,
				BurstSize:         60,
			},
		},
	}
}

// GetResourceLimit returns the limit configuration for a specific
// resource, or nil if no specific limit is configured for it.
func (c *Config) GetResourceLimit(name string) *ResourceLimit {
	for _, r := range c.Resources {
		if r.Name == name {
			return &r
		}
	}
	return nil
}
