// Package strategy decides how long a result may be cached and which tags
// it is filed under, from the freshness of its date range.
package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-report-cache/daterange"
)

// Policy holds the TTL per volatility class.
type Policy struct {
	Live          time.Duration `mapstructure:"live_ttl"`
	Recent        time.Duration `mapstructure:"recent_ttl"`
	Stable        time.Duration `mapstructure:"stable_ttl"`
	CustomCeiling time.Duration `mapstructure:"custom_ttl"`
	HorizonDays   int           `mapstructure:"horizon_days"`
}

// DefaultPolicy returns the stock TTLs.
func DefaultPolicy() Policy {
	return Policy{
		Live:          5 * time.Minute,
		Recent:        30 * time.Minute,
		Stable:        6 * time.Hour,
		CustomCeiling: 10 * time.Minute,
		HorizonDays:   daterange.DefaultHorizonDays,
	}
}

// Validate requires Stable > Recent > Live > 0.
func (p Policy) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Live, validation.Required, validation.Min(time.Second)),
		validation.Field(&p.Recent, validation.Required),
		validation.Field(&p.Stable, validation.Required),
		validation.Field(&p.CustomCeiling, validation.Required, validation.Min(time.Second)),
		validation.Field(&p.HorizonDays, validation.Required, validation.Min(1), validation.Max(90)),
	)
	if err != nil {
		return err
	}

	errs := validation.Errors{}
	if p.Recent <= p.Live {
		errs["recent_ttl"] = errors.New("must be longer than live_ttl")
	}
	if p.Stable <= p.Recent {
		errs["stable_ttl"] = errors.New("must be longer than recent_ttl")
	}
	return errs.Filter()
}

// TTL returns the lifetime for a volatility class.
func (p Policy) TTL(v daterange.Volatility) time.Duration {
	switch v {
	case daterange.Stable:
		return p.Stable
	case daterange.Recent:
		return p.Recent
	default:
		return p.Live
	}
}

// Plan is the caching decision for one request.
type Plan struct {
	TTL        time.Duration
	Tags       []string
	Volatility daterange.Volatility
	Bucket     daterange.Bucket
	Custom     bool
	Range      string
}

// Seconds returns the TTL in whole seconds.
func (p Plan) Seconds() int {
	return int(p.TTL / time.Second)
}

// CacheControl renders the header advertising the same lifetime to shared
// caches in front of the service.
func (p Plan) CacheControl() string {
	s := p.Seconds()
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", s, 2*s)
}

// Strategist is the single place every endpoint asks for a Plan.
type Strategist struct {
	policy Policy
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Strategist.
type Option func(*Strategist)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Strategist) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Strategist) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New validates policy and returns a Strategist.
func New(policy Policy, opts ...Option) (*Strategist, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("cache policy: %w", err)
	}
	s := &Strategist{policy: policy, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the policy in use.
func (s *Strategist) Policy() Policy { return s.policy }

// Now returns the current time in the strategist's location.
func (s *Strategist) Now() time.Time {
	return s.now().In(s.loc)
}

// ParseRange resolves request date parameters against the strategist clock.
func (s *Strategist) ParseRange(rangeName, startDate, endDate string) (daterange.Descriptor, error) {
	return daterange.Parse(rangeName, startDate, endDate, s.Now())
}

// Plan picks the TTL and tags for a request. Custom ranges are capped at
// the custom ceiling whatever their class.
func (s *Strategist) Plan(endpoint, dataset string, d daterange.Descriptor) Plan {
	volatility := d.Volatility(s.Now(), s.policy.HorizonDays)
	ttl := s.policy.TTL(volatility)
	if d.IsCustom() && ttl > s.policy.CustomCeiling {
		ttl = s.policy.CustomCeiling
	}

	return Plan{
		TTL:        ttl,
		Tags:       Tags(endpoint, dataset, d.Bucket),
		Volatility: volatility,
		Bucket:     d.Bucket,
		Custom:     d.IsCustom(),
		Range:      d.Label(),
	}
}

// Tags returns the invalidation tags for an entry.
func Tags(endpoint, dataset string, bucket daterange.Bucket) []string {
	tags := make([]string, 0, 3)
	if dataset != "" {
		tags = append(tags, DatasetTag(dataset))
	}
	if bucket != "" {
		tags = append(tags, BucketTag(bucket))
	}
	if endpoint != "" {
		tags = append(tags, EndpointTag(endpoint))
	}
	return tags
}

func DatasetTag(name string) string           { return "dataset:" + strings.ToLower(name) }
func BucketTag(bucket daterange.Bucket) string { return "bucket:" + string(bucket) }
func EndpointTag(name string) string          { return "endpoint:" + strings.ToLower(name) }
