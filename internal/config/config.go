package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Budget    BudgetConfig    `mapstructure:"budget"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Scorer    ScorerConfig    `mapstructure:"scorer"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Vocab     VocabConfig     `mapstructure:"vocab"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// CloseSweep finalizes entries whose auction passed its close time
	// without a terminal observation arriving from any feed.
	CloseSweep string `mapstructure:"close_sweep"`
	// ObservationPrune removes raw observations older than the retention
	// window to keep the observations table bounded.
	ObservationPrune     string        `mapstructure:"observation_prune"`
	ObservationRetention time.Duration `mapstructure:"observation_retention"`
	OptimizeReport       string        `mapstructure:"optimize_report"`
}

type BudgetConfig struct {
	Total float64 `mapstructure:"total"`
	Daily float64 `mapstructure:"daily"`
}

type StrategyConfig struct {
	MinROIPct           float64  `mapstructure:"min_roi_pct"`
	MaxRiskLevel        string   `mapstructure:"max_risk_level"`
	OverrideROIPct      float64  `mapstructure:"override_roi_pct"`
	PreferredCategories []string `mapstructure:"preferred_categories"`
	PreferredBrands     []string `mapstructure:"preferred_brands"`

	// Optimize() thresholds.
	BudgetLowPct          float64       `mapstructure:"budget_low_pct"`
	RiskConcentration     float64       `mapstructure:"risk_concentration"`
	CategoryConcentration float64       `mapstructure:"category_concentration"`
	TimingConflictWindow  time.Duration `mapstructure:"timing_conflict_window"`
}

type ReconcileConfig struct {
	CompleteThreshold float64 `mapstructure:"complete_threshold"`
	MinSources        int     `mapstructure:"min_sources"`
}

type PredictorConfig struct {
	// HeuristicDiscount scales the reference price when no trained
	// models are loaded.
	HeuristicDiscount   float64       `mapstructure:"heuristic_discount"`
	HeuristicConfidence float64       `mapstructure:"heuristic_confidence"`
	BidSafetyFactor     float64       `mapstructure:"bid_safety_factor"`
	RangeSpread         float64       `mapstructure:"range_spread"`
	EnsembleSize        int           `mapstructure:"ensemble_size"`
	MinTrainingSamples  int           `mapstructure:"min_training_samples"`
	RetrainInterval     time.Duration `mapstructure:"retrain_interval"`
}

type ScorerConfig struct {
	CompetitorThreshold int     `mapstructure:"competitor_threshold"`
	LowConfidence       float64 `mapstructure:"low_confidence"`

	// Recommendation bands: a band is met when both its score and ROI
	// minimums are met. Ties resolve to the lower band.
	StrongBuyScore float64 `mapstructure:"strong_buy_score"`
	StrongBuyROI   float64 `mapstructure:"strong_buy_roi"`
	BuyScore       float64 `mapstructure:"buy_score"`
	BuyROI         float64 `mapstructure:"buy_roi"`
	ConsiderScore  float64 `mapstructure:"consider_score"`
	ConsiderROI    float64 `mapstructure:"consider_roi"`
	WatchScore     float64 `mapstructure:"watch_score"`
}

type ExecutorConfig struct {
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	BidIncrement     float64       `mapstructure:"bid_increment"`
	TransportTimeout time.Duration `mapstructure:"transport_timeout"`

	// Venue endpoints bids are posted to. The fallback is tried once
	// when the primary fails in transit.
	PrimaryEndpoint  string `mapstructure:"primary_endpoint"`
	FallbackEndpoint string `mapstructure:"fallback_endpoint"`

	// Timing strategy windows.
	SnipeWindow      time.Duration `mapstructure:"snipe_window"`
	SnipeLead        time.Duration `mapstructure:"snipe_lead"`
	LastMinuteWindow time.Duration `mapstructure:"last_minute_window"`
	LastMinuteLead   time.Duration `mapstructure:"last_minute_lead"`
}

type MonitorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	EscalationFactor float64       `mapstructure:"escalation_factor"`
}

type FeedsConfig struct {
	DedupWindow time.Duration      `mapstructure:"dedup_window"`
	HTTP        []HTTPFeedConfig   `mapstructure:"http"`
	Stream      []StreamFeedConfig `mapstructure:"stream"`
}

type HTTPFeedConfig struct {
	Name         string        `mapstructure:"name"`
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type StreamFeedConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type VocabConfig struct {
	Categories []string `mapstructure:"categories"`
	Brands     []string `mapstructure:"brands"`
	Conditions []string `mapstructure:"conditions"`
	Locations  []string `mapstructure:"locations"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.close_sweep", "@every 1m")
	v.SetDefault("cron.observation_prune", "@every 1h")
	v.SetDefault("cron.observation_retention", "168h")
	v.SetDefault("cron.optimize_report", "@every 15m")

	v.SetDefault("budget.total", 10000)
	v.SetDefault("budget.daily", 2000)

	v.SetDefault("strategy.min_roi_pct", 15)
	v.SetDefault("strategy.max_risk_level", "MEDIUM")
	v.SetDefault("strategy.override_roi_pct", 40)
	v.SetDefault("strategy.budget_low_pct", 10)
	v.SetDefault("strategy.risk_concentration", 0.5)
	v.SetDefault("strategy.category_concentration", 0.6)
	v.SetDefault("strategy.timing_conflict_window", "30m")

	v.SetDefault("reconcile.complete_threshold", 70)
	v.SetDefault("reconcile.min_sources", 2)

	v.SetDefault("predictor.heuristic_discount", 0.85)
	v.SetDefault("predictor.heuristic_confidence", 0.2)
	v.SetDefault("predictor.bid_safety_factor", 0.92)
	v.SetDefault("predictor.range_spread", 0.15)
	v.SetDefault("predictor.ensemble_size", 5)
	v.SetDefault("predictor.min_training_samples", 25)
	v.SetDefault("predictor.retrain_interval", "6h")

	v.SetDefault("scorer.competitor_threshold", 5)
	v.SetDefault("scorer.low_confidence", 0.35)
	v.SetDefault("scorer.strong_buy_score", 75)
	v.SetDefault("scorer.strong_buy_roi", 30)
	v.SetDefault("scorer.buy_score", 60)
	v.SetDefault("scorer.buy_roi", 20)
	v.SetDefault("scorer.consider_score", 45)
	v.SetDefault("scorer.consider_roi", 10)
	v.SetDefault("scorer.watch_score", 30)

	v.SetDefault("executor.scan_interval", "10s")
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.bid_increment", 100)
	v.SetDefault("executor.transport_timeout", "10s")
	v.SetDefault("executor.primary_endpoint", "http://localhost:9000/bids")
	v.SetDefault("executor.fallback_endpoint", "")
	v.SetDefault("executor.snipe_window", "5m")
	v.SetDefault("executor.snipe_lead", "20s")
	v.SetDefault("executor.last_minute_window", "2h")
	v.SetDefault("executor.last_minute_lead", "10m")

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.escalation_factor", 1.0)

	v.SetDefault("feeds.dedup_window", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
