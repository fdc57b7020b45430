package plans

import (
	"fmt"
	"strconv"

	"github.com/platinummonkey/finance/pkg/models"
)

// Plan option keys
const (
	OptionBillingInterval          = "billing_interval"
	OptionInvoiceWaitTime          = "invoice_wait_time"
	OptionCreditsDeductionWaitTime = "credits_deduction_wait_time"
	OptionTimeToWaitBeforeStopping = "time_to_wait_before_stopping"
	OptionStopServiceWaitTime      = "stop_service_wait_time"
	OptionDefaultResourceValue     = "finance_plan_default_resource_value"
	OptionRules                    = "financeplan"
	OptionRulesFilePath            = "finance_plan_file_path"
)

// settings are the parsed options of a plan. Durations are milliseconds.
type settings struct {
	billingInterval  int64
	billingSleep     int64
	gracePeriod      int64
	stopServiceSleep int64
	defaultValue     float64
	// rules is nil when the options carry no rule set
	rules map[string]string
}

// layout names the option keys that differ between plan kinds
type layout struct {
	sleepKey        string
	billingInterval bool
}

var (
	prepaidLayout  = layout{sleepKey: OptionCreditsDeductionWaitTime}
	postpaidLayout = layout{sleepKey: OptionInvoiceWaitTime, billingInterval: true}
)

// parseSettings validates every option before anything is applied
func parseSettings(options map[string]string, l layout) (settings, error) {
	var s settings
	var err error

	if l.billingInterval {
		if s.billingInterval, err = requireMillis(options, OptionBillingInterval, 0); err != nil {
			return settings{}, err
		}
	}
	if s.billingSleep, err = requireMillis(options, l.sleepKey, 1); err != nil {
		return settings{}, err
	}
	if s.gracePeriod, err = requireMillis(options, OptionTimeToWaitBeforeStopping, 0); err != nil {
		return settings{}, err
	}

	s.stopServiceSleep = s.billingSleep
	if _, ok := options[OptionStopServiceWaitTime]; ok {
		if s.stopServiceSleep, err = requireMillis(options, OptionStopServiceWaitTime, 1); err != nil {
			return settings{}, err
		}
	}

	raw, ok := options[OptionDefaultResourceValue]
	if !ok {
		return settings{}, missing(OptionDefaultResourceValue)
	}
	if s.defaultValue, err = strconv.ParseFloat(raw, 64); err != nil {
		return settings{}, invalid(OptionDefaultResourceValue, raw)
	}
	if s.defaultValue < 0 {
		return settings{}, invalid(OptionDefaultResourceValue, raw)
	}

	if s.rules, err = loadRules(options); err != nil {
		return settings{}, err
	}
	return s, nil
}

// loadRules reads the inline rule set, falling back to the rules file
func loadRules(options map[string]string) (map[string]string, error) {
	if inline, ok := options[OptionRules]; ok {
		return models.DecodeRules([]byte(inline))
	}
	if path, ok := options[OptionRulesFilePath]; ok {
		return models.LoadRulesFile(path)
	}
	return nil, nil
}

func requireMillis(options map[string]string, key string, min int64) (int64, error) {
	raw, ok := options[key]
	if !ok {
		return 0, missing(key)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < min {
		return 0, invalid(key, raw)
	}
	return value, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: missing finance option %s", models.ErrInvalidParameter, key)
}

func invalid(key, value string) error {
	return fmt.Errorf("%w: invalid value %q for finance option %s", models.ErrInvalidParameter, value, key)
}

func copyOptions(options map[string]string) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
