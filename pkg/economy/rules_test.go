package economy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRulesTable(test *testing.T) {
	test.Parallel()
	rules := DefaultRules()
	rule, err := rules.ConversionRule(CurrencyPoints, CurrencyKeys)
	if err != nil {
		test.Fatalf("points to keys: %v", err)
	}
	if rule.Rate != 500 || rule.DailyLimit != 3 || rule.Rounding != RoundingFloor {
		test.Fatalf("unexpected rule %+v", rule)
	}
	if _, err := rules.ConversionRule(CurrencyKeys, CurrencyPoints); !errors.Is(err, ErrUnsupportedPair) {
		test.Fatalf(errorMismatch, ErrUnsupportedPair, err)
	}
	if rules.TierMultiplier(TierSuper).String() != "2" {
		test.Fatalf("unexpected super multiplier %s", rules.TierMultiplier(TierSuper))
	}
	if rules.TierMultiplier(Tier("unknown")).String() != "1" {
		test.Fatalf("unknown tier should default to 1")
	}
	tiers := rules.Tiers()
	if len(tiers) != 3 || tiers[0] != TierFree || tiers[2] != TierSuper {
		test.Fatalf("unexpected tier order %v", tiers)
	}
	channel, err := rules.StakeChannel(" highrisk ")
	if err != nil || channel.LockDays != 30 || channel.Payout(33) != 66 {
		test.Fatalf("unexpected channel %+v %v", channel, err)
	}
	if rules.LeaderboardWeight(CurrencyGems).String() != "0.4" {
		test.Fatalf("unexpected gems weight %s", rules.LeaderboardWeight(CurrencyGems))
	}
}

func TestQuoteFloorsToWholeUnits(test *testing.T) {
	test.Parallel()
	rule := ConversionRule{From: CurrencyPoints, To: CurrencyKeys, Rate: 500, Rounding: RoundingFloor}
	testCases := []struct {
		amount    int64
		wantUnits int64
		wantCost  int64
		wantErr   error
	}{
		{amount: 499, wantErr: ErrBelowMinimum},
		{amount: 500, wantUnits: 1, wantCost: 500},
		{amount: 999, wantUnits: 1, wantCost: 500},
		{amount: 2500, wantUnits: 5, wantCost: 2500},
	}
	for _, testCase := range testCases {
		units, cost, err := rule.Quote(PositiveAmount(testCase.amount))
		if !errors.Is(err, testCase.wantErr) {
			test.Fatalf("amount %d: "+errorMismatch, testCase.amount, testCase.wantErr, err)
		}
		if units != testCase.wantUnits || cost != testCase.wantCost {
			test.Fatalf("amount %d: got %d units for %d", testCase.amount, units, cost)
		}
	}
}

func TestParseRulesValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		contents string
	}{
		{name: "missing version", contents: "conversions: []"},
		{name: "unknown currency", contents: "version: v1\nconversions:\n  - {from: points, to: silver, rate: 10}"},
		{name: "same currency", contents: "version: v1\nconversions:\n  - {from: points, to: points, rate: 10}"},
		{name: "zero rate", contents: "version: v1\nconversions:\n  - {from: points, to: keys, rate: 0}"},
		{name: "ceil rounding", contents: "version: v1\nconversions:\n  - {from: points, to: keys, rate: 10, rounding: ceil}"},
		{name: "duplicate pair", contents: "version: v1\nconversions:\n  - {from: points, to: keys, rate: 10}\n  - {from: points, to: keys, rate: 20}"},
		{name: "negative tier multiplier", contents: "version: v1\ntier_multipliers:\n  free: \"-1\""},
		{name: "unknown tier", contents: "version: v1\ntier_multipliers:\n  gold: \"1\""},
		{name: "stake without lock", contents: "version: v1\nstake_channels:\n  - {name: Fast, lock_days: 0, multiplier: \"1.1\"}"},
		{name: "negative withdrawal minimum", contents: "version: v1\nminimum_withdrawal_gems: -5"},
		{name: "malformed yaml", contents: "version: [v1"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := ParseRules([]byte(testCase.contents)); !errors.Is(err, ErrInvalidRules) {
				test.Fatalf(errorMismatch, ErrInvalidRules, err)
			}
		})
	}
}

func TestLoadRulesFromFile(test *testing.T) {
	test.Parallel()
	path := filepath.Join(test.TempDir(), "rules.yaml")
	contents := "version: \"2025.2\"\nconversions:\n  - {from: gems, to: gold, rate: 100, daily_limit: 0}\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		test.Fatalf("write rules: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		test.Fatalf("load rules: %v", err)
	}
	if rules.Version != "2025.2" {
		test.Fatalf("unexpected version %q", rules.Version)
	}
	if _, err := rules.ConversionRule(CurrencyGems, CurrencyGold); err != nil {
		test.Fatalf("gems to gold: %v", err)
	}
	defaults, err := LoadRules("")
	if err != nil || defaults.Version != DefaultRules().Version {
		test.Fatalf("expected defaults for empty path, got %q %v", defaults.Version, err)
	}
	if _, err := LoadRules(filepath.Join(test.TempDir(), "missing.yaml")); err == nil {
		test.Fatalf("expected error for missing file")
	}
}
