// Package plans implements the finance plan kinds.
//
// # Overview
//
// A plan prices resource usage with a FinancePolicy and runs two background
// workers over the users subscribed to it: one bills them, the other stops
// and resumes their resources as their payment status changes.
//
//   - prepaid: usage is deducted from a credit balance every
//     credits_deduction_wait_time milliseconds
//   - postpaid: usage is invoiced once every billing_interval milliseconds
//
// Kinds are looked up in a registry so persisted plans can be rebuilt by
// kind name:
//
//	plan, err := plans.New(plans.KindPostpaid, "gold", map[string]string{
//		plans.OptionBillingInterval:          "2592000000",
//		plans.OptionInvoiceWaitTime:          "60000",
//		plans.OptionTimeToWaitBeforeStopping: "86400000",
//		plans.OptionDefaultResourceValue:     "0.0001",
//		plans.OptionRules:                    `{"small": "compute,fulfilled,1,2,10/h"}`,
//	}, deps)
//
// # Options
//
// Numeric options are milliseconds, parsed before anything is applied, so a
// rejected update leaves the plan unchanged. The rule set is read from
// financeplan or, when absent, from the YAML file at finance_plan_file_path.
// An update without either keeps the current rules.
//
// # User Flows
//
// Leaving a postpaid plan requires every invoice to be paid. The user then
// receives a final invoice for the usage since its last bill, which is owed
// immediately and tracked as a debt across later subscriptions.
package plans
