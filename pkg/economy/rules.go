package economy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// RoundingPolicy names how fractional destination units are handled.
type RoundingPolicy string

const RoundingFloor RoundingPolicy = "floor"

// ConversionRule moves value from one currency to another at a fixed integer rate.
type ConversionRule struct {
	From       Currency
	To         Currency
	Rate       int64
	Rounding   RoundingPolicy
	DailyLimit int64
}

// Quote returns the destination units and the exact source cost for amount.
func (rule ConversionRule) Quote(amount PositiveAmount) (int64, int64, error) {
	units := amount.Int64() / rule.Rate
	if units == 0 {
		return 0, 0, fmt.Errorf("%w: minimum %d %s for 1 %s", ErrBelowMinimum, rule.Rate, rule.From, rule.To)
	}
	return units, units * rule.Rate, nil
}

// StakeChannel is a lock period with its payout multiplier.
type StakeChannel struct {
	Name       string
	LockDays   int
	Multiplier decimal.Decimal
}

// Payout returns the gems returned for a matured stake, rounded down.
func (channel StakeChannel) Payout(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(channel.Multiplier).Floor().IntPart()
}

// Rules is the versioned table of exchange and reward constants.
type Rules struct {
	Version               string
	Conversions           []ConversionRule
	TierMultipliers       map[Tier]decimal.Decimal
	StakeChannels         []StakeChannel
	MinimumWithdrawalGems int64
	LeaderboardWeights    map[Currency]decimal.Decimal
}

type rulesDocument struct {
	Version     string `yaml:"version"`
	Conversions []struct {
		From       string `yaml:"from"`
		To         string `yaml:"to"`
		Rate       int64  `yaml:"rate"`
		Rounding   string `yaml:"rounding"`
		DailyLimit int64  `yaml:"daily_limit"`
	} `yaml:"conversions"`
	TierMultipliers map[string]string `yaml:"tier_multipliers"`
	StakeChannels   []struct {
		Name       string `yaml:"name"`
		LockDays   int    `yaml:"lock_days"`
		Multiplier string `yaml:"multiplier"`
	} `yaml:"stake_channels"`
	MinimumWithdrawalGems int64             `yaml:"minimum_withdrawal_gems"`
	LeaderboardWeights    map[string]string `yaml:"leaderboard_weights"`
}

// DefaultRules returns the built-in rules table.
func DefaultRules() Rules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("economy: embedded rules invalid: %v", err))
	}
	return rules
}

// LoadRules reads a rules table from path, or returns the defaults for an empty path.
func LoadRules(path string) (Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(contents)
}

// ParseRules decodes and validates a YAML rules table.
func ParseRules(contents []byte) (Rules, error) {
	var document rulesDocument
	if err := yaml.Unmarshal(contents, &document); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	rules := Rules{
		Version:               strings.TrimSpace(document.Version),
		TierMultipliers:       make(map[Tier]decimal.Decimal, len(document.TierMultipliers)),
		MinimumWithdrawalGems: document.MinimumWithdrawalGems,
		LeaderboardWeights:    make(map[Currency]decimal.Decimal, len(document.LeaderboardWeights)),
	}
	if rules.Version == "" {
		return Rules{}, fmt.Errorf("%w: version is required", ErrInvalidRules)
	}
	seenPairs := make(map[string]struct{}, len(document.Conversions))
	for _, rawRule := range document.Conversions {
		from, err := ParseCurrency(rawRule.From)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: conversion source: %v", ErrInvalidRules, err)
		}
		to, err := ParseCurrency(rawRule.To)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: conversion destination: %v", ErrInvalidRules, err)
		}
		if from == to {
			return Rules{}, fmt.Errorf("%w: conversion %s→%s is a no-op", ErrInvalidRules, from, to)
		}
		if rawRule.Rate <= 0 {
			return Rules{}, fmt.Errorf("%w: conversion %s→%s rate must be positive", ErrInvalidRules, from, to)
		}
		rounding := RoundingPolicy(strings.TrimSpace(rawRule.Rounding))
		if rounding == "" {
			rounding = RoundingFloor
		}
		if rounding != RoundingFloor {
			return Rules{}, fmt.Errorf("%w: unsupported rounding %q", ErrInvalidRules, rounding)
		}
		if rawRule.DailyLimit < 0 {
			return Rules{}, fmt.Errorf("%w: conversion %s→%s daily limit is negative", ErrInvalidRules, from, to)
		}
		pairKey := from.String() + ">" + to.String()
		if _, duplicate := seenPairs[pairKey]; duplicate {
			return Rules{}, fmt.Errorf("%w: conversion %s→%s listed twice", ErrInvalidRules, from, to)
		}
		seenPairs[pairKey] = struct{}{}
		rules.Conversions = append(rules.Conversions, ConversionRule{
			From:       from,
			To:         to,
			Rate:       rawRule.Rate,
			Rounding:   rounding,
			DailyLimit: rawRule.DailyLimit,
		})
	}
	for rawTier, rawMultiplier := range document.TierMultipliers {
		tier, err := ParseTier(rawTier)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		multiplier, err := parsePositiveDecimal(rawMultiplier)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: tier %s: %v", ErrInvalidRules, tier, err)
		}
		rules.TierMultipliers[tier] = multiplier
	}
	for _, rawChannel := range document.StakeChannels {
		name := strings.TrimSpace(rawChannel.Name)
		if name == "" {
			return Rules{}, fmt.Errorf("%w: stake channel name is required", ErrInvalidRules)
		}
		if rawChannel.LockDays <= 0 {
			return Rules{}, fmt.Errorf("%w: stake channel %s lock days must be positive", ErrInvalidRules, name)
		}
		multiplier, err := parsePositiveDecimal(rawChannel.Multiplier)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: stake channel %s: %v", ErrInvalidRules, name, err)
		}
		rules.StakeChannels = append(rules.StakeChannels, StakeChannel{Name: name, LockDays: rawChannel.LockDays, Multiplier: multiplier})
	}
	for rawCurrency, rawWeight := range document.LeaderboardWeights {
		currency, err := ParseCurrency(rawCurrency)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: leaderboard weight: %v", ErrInvalidRules, err)
		}
		weight, err := decimal.NewFromString(strings.TrimSpace(rawWeight))
		if err != nil || weight.IsNegative() {
			return Rules{}, fmt.Errorf("%w: leaderboard weight for %s must be a non-negative decimal", ErrInvalidRules, currency)
		}
		rules.LeaderboardWeights[currency] = weight
	}
	if rules.MinimumWithdrawalGems < 0 {
		return Rules{}, fmt.Errorf("%w: minimum withdrawal is negative", ErrInvalidRules)
	}
	return rules, nil
}

// ConversionRule returns the enabled rule for an ordered pair.
func (rules Rules) ConversionRule(from Currency, to Currency) (ConversionRule, error) {
	for _, rule := range rules.Conversions {
		if rule.From == from && rule.To == to {
			return rule, nil
		}
	}
	return ConversionRule{}, fmt.Errorf("%w: %s to %s", ErrUnsupportedPair, from, to)
}

// StakeChannel returns the channel with the given name (case-insensitive).
func (rules Rules) StakeChannel(name string) (StakeChannel, error) {
	trimmed := strings.TrimSpace(name)
	for _, channel := range rules.StakeChannels {
		if strings.EqualFold(channel.Name, trimmed) {
			return channel, nil
		}
	}
	return StakeChannel{}, fmt.Errorf("%w: %q", ErrUnknownStakeChannel, name)
}

// TierMultiplier returns the reward multiplier for tier, defaulting to one.
func (rules Rules) TierMultiplier(tier Tier) decimal.Decimal {
	multiplier, ok := rules.TierMultipliers[tier]
	if !ok {
		return decimal.NewFromInt(1)
	}
	return multiplier
}

// LeaderboardWeight returns the score weight for currency, zero when unset.
func (rules Rules) LeaderboardWeight(currency Currency) decimal.Decimal {
	return rules.LeaderboardWeights[currency]
}

// Tiers returns the configured tiers in a stable order.
func (rules Rules) Tiers() []Tier {
	tiers := make([]Tier, 0, len(rules.TierMultipliers))
	for tier := range rules.TierMultipliers {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(left, right int) bool {
		return rules.TierMultipliers[tiers[left]].LessThan(rules.TierMultipliers[tiers[right]])
	})
	return tiers
}

func parsePositiveDecimal(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !value.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("must be positive, got %s", value)
	}
	return value, nil
}
