package model

import "fmt"

// Contract identifies a single futures contract traded by one strategy
// instance.
type Contract struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Expiry   string `json:"expiry" yaml:"expiry"` // contract month, YYYYMM
	Exchange string `json:"exchange" yaml:"exchange"`
	Currency string `json:"currency" yaml:"currency"`
}

// Key returns a unique key for this contract: "exchange:symbol:expiry".
func (c Contract) Key() string {
	return c.Exchange + ":" + c.Symbol + ":" + c.Expiry
}

// Validate checks that all required contract fields are set.
func (c Contract) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("contract: missing symbol")
	}
	if c.Exchange == "" {
		return fmt.Errorf("contract: missing exchange")
	}
	if c.Currency == "" {
		return fmt.Errorf("contract: missing currency")
	}
	return nil
}
